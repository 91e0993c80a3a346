package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	steps, err := loadMigrations(migrationFiles)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(steps) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if steps[0].Version != 1 || steps[0].Name != "init" {
		t.Errorf("expected first step 1/init, got %d/%s", steps[0].Version, steps[0].Name)
	}
	if !strings.Contains(steps[0].SQL, "attendance_logs") {
		t.Error("expected init migration to create attendance_logs")
	}
}

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_add_device.sql": {Data: []byte("ALTER TABLE attendance_logs ADD COLUMN device TEXT;")},
		"migrations/002_index.sql":      {Data: []byte("CREATE INDEX x ON employees (name);")},
		"migrations/001_init.sql":       {Data: []byte("CREATE TABLE employees (name TEXT);")},
		"migrations/README.md":          {Data: []byte("ignored")},
	}

	steps, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}

	var versions []int
	for _, s := range steps {
		versions = append(versions, s.Version)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[1] != 2 || versions[2] != 10 {
		t.Errorf("expected versions [1 2 10], got %v", versions)
	}
	if steps[2].Name != "add_device" {
		t.Errorf("expected name add_device, got %s", steps[2].Name)
	}
}

func TestLoadMigrations_RejectsBadNames(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "no number",
			fsys: fstest.MapFS{"migrations/init.sql": {Data: []byte("")}},
			want: "name must look like",
		},
		{
			name: "zero version",
			fsys: fstest.MapFS{"migrations/000_init.sql": {Data: []byte("")}},
			want: "name must look like",
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"migrations/001_init.sql":  {Data: []byte("")},
				"migrations/001_other.sql": {Data: []byte("")},
			},
			want: "share version 1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadMigrations(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
