package facematch

import (
	"path/filepath"
	"strings"

	"github.com/kozaktomas/attendance/internal/constants"
)

// ResolveName derives the person name from a reference image path.
//
// Images live either in a per-person directory (faces_db/Alice/face_1.jpg -> "Alice")
// or flat in the enrollment root (faces_db/bob.jpg -> "bob"). A parent directory equal
// to the enrollment root's base name, or no parent at all, selects the file name form.
func ResolveName(identityPath, enrollmentRoot string) string {
	p := filepath.Clean(filepath.FromSlash(identityPath))
	parent := filepath.Base(filepath.Dir(p))

	if enrollmentRoot == "" {
		enrollmentRoot = constants.DefaultEnrollmentDir
	}
	rootBase := filepath.Base(filepath.Clean(enrollmentRoot))

	if parent == "" || parent == "." || parent == string(filepath.Separator) || parent == rootBase {
		base := filepath.Base(p)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return parent
}
