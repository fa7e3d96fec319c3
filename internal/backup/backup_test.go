package backup

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	witherrors "github.com/dkmnx/with/internal/errors"
)

func writeConfigDir(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	files := map[string]string{
		"age.key":          "test-key",
		"config.yaml":      "default_profile: dev\n",
		"profiles/dev.age": "dev-vault",
		"profiles/ci.age":  "ci-vault",
		"audit.log":        "{}\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func zipNames(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Failed to open zip: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		t.Fatalf("Failed to read zip: %v", err)
	}

	var names []string
	for _, zf := range r.File {
		rc, err := zf.Open()
		if err != nil {
			t.Errorf("Failed to open %s: %v", zf.Name, err)
			continue
		}
		_, _ = io.ReadAll(rc)
		rc.Close()
		names = append(names, zf.Name)
	}
	sort.Strings(names)
	return names
}

func writeZip(t *testing.T, fs afero.Fs, path string, entries map[string]string) {
	t.Helper()
	zipFile, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(zipFile)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	zipFile.Close()
}

func TestCreateBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfigDir(t, fs, "/cfg")

	backupPath, err := CreateBackup(fs, "/cfg")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	if filepath.Dir(backupPath) != filepath.Join("/cfg", DirName) {
		t.Errorf("backup written to %s, want under %s", backupPath, DirName)
	}

	want := []string{"age.key", "config.yaml", "profiles/ci.age", "profiles/dev.age"}
	if diff := cmp.Diff(want, zipNames(t, fs, backupPath)); diff != "" {
		t.Errorf("archive members mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateBackupPermissions(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	writeConfigDir(t, fs, dir)

	backupPath, err := CreateBackup(fs, dir)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	info, err := os.Stat(backupPath)
	if err != nil {
		t.Fatalf("backup file does not exist: %s", backupPath)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("backup mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestCreateBackupEmptyDir(t *testing.T) {
	fs := afero.NewMemMapFs()

	backupPath, err := CreateBackup(fs, "/cfg")
	if err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}
	if names := zipNames(t, fs, backupPath); len(names) != 0 {
		t.Errorf("archive members = %v, want none", names)
	}
}

func TestCreateBackupReadOnlyFs(t *testing.T) {
	base := afero.NewMemMapFs()
	writeConfigDir(t, base, "/cfg")

	_, err := CreateBackup(afero.NewReadOnlyFs(base), "/cfg")
	if !witherrors.IsType(err, witherrors.FileSystemError) {
		t.Errorf("CreateBackup() error = %v, want filesystem error", err)
	}
}

func TestRestoreBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfigDir(t, fs, "/cfg")

	backupPath, err := CreateBackup(fs, "/cfg")
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	_ = fs.Remove("/cfg/age.key")
	_ = fs.RemoveAll("/cfg/profiles")
	_ = afero.WriteFile(fs, "/cfg/config.yaml", []byte("changed"), 0600)

	if err := RestoreBackup(fs, "/cfg", backupPath); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}

	for name, want := range map[string]string{
		"age.key":          "test-key",
		"config.yaml":      "default_profile: dev\n",
		"profiles/dev.age": "dev-vault",
	} {
		got, err := afero.ReadFile(fs, filepath.Join("/cfg", filepath.FromSlash(name)))
		if err != nil {
			t.Errorf("%s not restored: %v", name, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if ok, _ := afero.Exists(fs, "/cfg/age.key.tmp"); ok {
		t.Error("temporary file left behind")
	}
}

func TestRestoreBackupIntoMissingDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeZip(t, fs, "/test.zip", map[string]string{"profiles/dev.age": "vault"})

	if err := RestoreBackup(fs, "/newdir", "/test.zip"); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}

	if ok, _ := afero.Exists(fs, "/newdir/profiles/dev.age"); !ok {
		t.Error("restored file should exist")
	}
}

func TestRestoreBackupRejectsTraversal(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{"parent directory", "../escape.txt"},
		{"nested parent", "profiles/../../escape.txt"},
		{"absolute", "/tmp/escape.txt"},
		{"backslash", `..\escape.txt`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeZip(t, fs, "/work/evil.zip", map[string]string{
				"config.yaml": "ok",
				tt.entry:      "pwned",
			})

			err := RestoreBackup(fs, "/work/cfg", "/work/evil.zip")
			if !witherrors.IsType(err, witherrors.ValidationError) {
				t.Fatalf("RestoreBackup() error = %v, want validation error", err)
			}

			if ok, _ := afero.Exists(fs, "/work/cfg/config.yaml"); ok {
				t.Error("nothing should be written when an entry is rejected")
			}
			if ok, _ := afero.Exists(fs, "/work/escape.txt"); ok {
				t.Error("entry escaped the config directory")
			}
		})
	}
}

func TestRestoreBackupMissingArchive(t *testing.T) {
	err := RestoreBackup(afero.NewMemMapFs(), "/cfg", "/missing.zip")
	if !witherrors.IsType(err, witherrors.FileSystemError) {
		t.Errorf("RestoreBackup() error = %v, want filesystem error", err)
	}
}

func TestRestoreBackupNotAZip(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/junk.zip", []byte("not a zip"), 0600); err != nil {
		t.Fatal(err)
	}
	err := RestoreBackup(fs, "/cfg", "/junk.zip")
	if !witherrors.IsType(err, witherrors.FileSystemError) {
		t.Errorf("RestoreBackup() error = %v, want filesystem error", err)
	}
}
