// Package backup writes and restores zip archives of the config directory.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/pkg/env"
)

// DirName is the backup directory inside the config directory.
const DirName = "backups"

// maxEntrySize bounds a single restored file.
const maxEntrySize = 64 << 20

// CreateBackup archives the key, the configuration and every profile vault
// into <configDir>/backups/with_backup_<timestamp>.zip.
func CreateBackup(fs afero.Fs, configDir string) (string, error) {
	backupDir := filepath.Join(configDir, DirName)
	if err := fs.MkdirAll(backupDir, 0700); err != nil {
		return "", witherrors.FileError("failed to create backup directory", backupDir, err)
	}

	files, err := backupFiles(fs, configDir)
	if err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102_150405")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("with_backup_%s.zip", timestamp))

	zipFile, err := fs.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", witherrors.FileError("failed to create backup archive", backupPath, err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, name := range files {
		if err := addFile(fs, zipWriter, configDir, name); err != nil {
			_ = fs.Remove(backupPath)
			return "", err
		}
	}

	if err := zipWriter.Close(); err != nil {
		_ = fs.Remove(backupPath)
		return "", witherrors.FileError("failed to finish backup archive", backupPath, err)
	}
	return backupPath, nil
}

// backupFiles lists the archive members relative to configDir, with
// forward slashes.
func backupFiles(fs afero.Fs, configDir string) ([]string, error) {
	var files []string
	for _, f := range []string{"age.key", "config.yaml"} {
		if _, err := fs.Stat(filepath.Join(configDir, f)); err == nil {
			files = append(files, f)
		}
	}

	vaults, err := afero.Glob(fs, filepath.Join(configDir, "profiles", "*.age"))
	if err != nil {
		return nil, witherrors.WrapError(witherrors.FileSystemError, "failed to list profile vaults", err)
	}
	for _, v := range vaults {
		files = append(files, "profiles/"+filepath.Base(v))
	}
	return files, nil
}

func addFile(fs afero.Fs, zw *zip.Writer, configDir, name string) error {
	srcPath := filepath.Join(configDir, filepath.FromSlash(name))
	src, err := fs.Open(srcPath)
	if err != nil {
		return witherrors.FileError("failed to open file for backup", srcPath, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return witherrors.FileError("failed to create archive entry", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return witherrors.FileError("failed to write archive entry", name, err)
	}
	return nil
}

// RestoreBackup extracts backupPath into configDir, overwriting existing
// files. Entries that would land outside configDir are rejected before
// anything is written.
func RestoreBackup(fs afero.Fs, configDir, backupPath string) error {
	archive, err := fs.Open(backupPath)
	if err != nil {
		return witherrors.FileError("failed to open backup archive", backupPath, err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return witherrors.FileError("failed to open backup archive", backupPath, err)
	}
	r, err := zip.NewReader(archive, info.Size())
	if err != nil {
		return witherrors.FileError("failed to open backup archive", backupPath, err)
	}

	root, err := filepath.Abs(configDir)
	if err != nil {
		return witherrors.FileError("failed to resolve config directory", configDir, err)
	}

	targets := make([]string, len(r.File))
	for i, f := range r.File {
		target, err := entryTarget(root, f.Name)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	for i, f := range r.File {
		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(targets[i], 0700); err != nil {
				return witherrors.FileError("failed to create directory", targets[i], err)
			}
			continue
		}
		if err := extractFile(fs, f, targets[i]); err != nil {
			return err
		}
	}
	return nil
}

func entryTarget(root, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", witherrors.NewError(witherrors.ValidationError, "illegal path in backup archive").
			WithContext("entry", name)
	}
	target := filepath.Join(root, filepath.FromSlash(name))
	if !env.IsSubPath(root, target) {
		return "", witherrors.NewError(witherrors.ValidationError, "illegal path in backup archive").
			WithContext("entry", name)
	}
	return target, nil
}

func extractFile(fs afero.Fs, f *zip.File, target string) error {
	if err := fs.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return witherrors.FileError("failed to create directory", filepath.Dir(target), err)
	}

	rc, err := f.Open()
	if err != nil {
		return witherrors.FileError("failed to open archive entry", f.Name, err)
	}
	defer rc.Close()

	tmp := target + ".tmp"
	out, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return witherrors.FileError("failed to create file", tmp, err)
	}

	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	closeErr := out.Close()
	if err == nil && n > maxEntrySize {
		err = fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return witherrors.FileError("failed to restore file", target, err)
	}

	if err := fs.Rename(tmp, target); err != nil {
		_ = fs.Remove(tmp)
		return witherrors.FileError("failed to restore file", target, err)
	}
	return nil
}
