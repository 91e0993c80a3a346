package enrollment

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance/internal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	img.Set(3, 3, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := filepath.Join(t.TempDir(), "faces_db")
	return NewStore(NewInvalidator(root, discardLogger()), discardLogger())
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestCleanName(t *testing.T) {
	valid := map[string]string{
		"Alice":          "Alice",
		"  Jan   Novák ": "Jan Novák",
		"O'Brien":        "O'Brien",
		"a.b":            "a.b",
	}
	for in, want := range valid {
		got, err := CleanName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "   ", "Unknown", "unknown", "../etc", "a/b", `a\b`, ".", "..", "...", ".hidden"} {
		_, err := CleanName(in)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", in)
	}
}

func TestSave_WritesPersonDirectory(t *testing.T) {
	s := newTestStore(t)

	name, path, err := s.Save(context.Background(), " Carol ", testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "Carol", name)
	assert.Equal(t, filepath.Join(s.Root(), "Carol"), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "face_"))
	assert.Equal(t, ".jpg", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	info, err := imaging.Validate(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", info.Format)
	assert.True(t, s.Exists())
}

func TestSave_UniqueFileNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, p1, err := s.Save(ctx, "Carol", testPNG(t))
	require.NoError(t, err)
	_, p2, err := s.Save(ctx, "Carol", testPNG(t))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	images, err := s.Images()
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestSave_ReusesCanonicalDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Save(ctx, "Jan Novák", testPNG(t))
	require.NoError(t, err)

	name, path, err := s.Save(ctx, "jan-novak", testPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "Jan Novák", name)
	assert.Equal(t, filepath.Join(s.Root(), "Jan Novák"), filepath.Dir(path))
}

func TestSave_RejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.Save(ctx, "Unknown", testPNG(t))
	assert.ErrorIs(t, err, ErrInvalidName)

	_, _, err = s.Save(ctx, "Carol", []byte("not an image"))
	assert.ErrorIs(t, err, imaging.ErrInvalidImage)

	assert.False(t, s.Exists(), "nothing is written for rejected input")
}

func TestSave_InvalidatesIndex(t *testing.T) {
	s := newTestStore(t)
	artifact := filepath.Join(s.Root(), "faces_Facenet512.hnsw")
	writeFile(t, artifact)
	writeFile(t, artifact+".meta")
	before := s.Invalidator().Generation()

	_, _, err := s.Save(context.Background(), "Carol", testPNG(t))
	require.NoError(t, err)

	assert.Greater(t, s.Invalidator().Generation(), before)
	_, err = os.Stat(artifact)
	assert.True(t, errors.Is(err, os.ErrNotExist), "artifact removed")
	_, err = os.Stat(artifact + ".meta")
	assert.True(t, errors.Is(err, os.ErrNotExist), "metadata removed")
}

func TestImages(t *testing.T) {
	s := newTestStore(t)
	root := s.Root()

	writeFile(t, filepath.Join(root, "Alice", "face_1.jpg"))
	writeFile(t, filepath.Join(root, "Alice", "face_2.PNG"))
	writeFile(t, filepath.Join(root, "Alice", ".DS_Store"))
	writeFile(t, filepath.Join(root, "Alice", "notes.txt"))
	writeFile(t, filepath.Join(root, "bob.jpg"))
	writeFile(t, filepath.Join(root, ".hidden", "face.jpg"))
	writeFile(t, filepath.Join(root, "faces_Facenet512.hnsw"))
	writeFile(t, filepath.Join(root, "faces_Facenet512.hnsw.entries"))
	writeFile(t, filepath.Join(root, "Alice", "nested", "deep.jpg"))

	images, err := s.Images()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "Alice", "face_1.jpg"),
		filepath.Join(root, "Alice", "face_2.PNG"),
		filepath.Join(root, "bob.jpg"),
	}, images)

	empty, err := s.IsEmpty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestImages_MissingRoot(t *testing.T) {
	s := newTestStore(t)

	images, err := s.Images()
	require.NoError(t, err)
	assert.Empty(t, images)

	empty, err := s.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
	assert.False(t, s.Exists())
}
