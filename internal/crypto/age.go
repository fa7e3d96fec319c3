// Package crypto manages the age X25519 key and encrypts vault files.
//
// The key file holds the identity line followed by the recipient line and is
// written with 0600 permissions. Every write goes to a sibling temporary file
// first and is renamed into place, so a failed write leaves the previous file
// untouched.
//
// Functions take an afero.Fs so callers and tests choose the filesystem.
// They are not safe for concurrent use on the same files; the age store
// serializes access.
package crypto

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/spf13/afero"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// KeyFileName is the key file name inside the config directory.
const KeyFileName = "age.key"

const (
	filePerm = 0600
	dirPerm  = 0700
)

// GenerateKey generates a new X25519 key and writes it to keyPath.
func GenerateKey(fs afero.Fs, keyPath string) error {
	key, err := age.GenerateX25519Identity()
	if err != nil {
		return witherrors.WrapError(witherrors.CryptoError,
			"failed to generate encryption key", err).
			WithContext("path", keyPath)
	}

	return WriteKey(fs, keyPath, key)
}

// WriteKey stores the identity and its recipient at keyPath, one per line.
func WriteKey(fs afero.Fs, keyPath string, key *age.X25519Identity) error {
	content := key.String() + "\n" + key.Recipient().String() + "\n"
	if err := writeAtomic(fs, keyPath, []byte(content)); err != nil {
		return witherrors.FileError("failed to write key file", keyPath, err)
	}
	return nil
}

// LoadIdentity reads the X25519 identity from keyPath.
func LoadIdentity(fs afero.Fs, keyPath string) (*age.X25519Identity, error) {
	lines, err := readKeyLines(fs, keyPath, 1)
	if err != nil {
		return nil, err
	}
	identity, err := age.ParseX25519Identity(lines[0])
	if err != nil {
		return nil, witherrors.CryptoErrorWithHint("failed to parse identity from key file",
			"key file may be corrupted", err).
			WithContext("path", keyPath)
	}
	return identity, nil
}

// EnsureKeyExists creates dir and a key inside it unless a key is already there.
func EnsureKeyExists(fs afero.Fs, dir string) error {
	keyPath := filepath.Join(dir, KeyFileName)

	_, err := fs.Stat(keyPath)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return witherrors.FileError("failed to check key file status", keyPath, err)
	}

	if err := fs.MkdirAll(dir, dirPerm); err != nil {
		return witherrors.FileError("failed to create config directory", dir, err)
	}
	return GenerateKey(fs, keyPath)
}

// Encrypt encrypts data to the recipient in keyPath and writes it to path.
func Encrypt(fs afero.Fs, path, keyPath string, data []byte) error {
	recipient, err := loadRecipient(fs, keyPath)
	if err != nil {
		return err
	}

	ciphertext, err := seal(recipient, data)
	if err != nil {
		return witherrors.WrapError(witherrors.CryptoError, "failed to encrypt vault", err).
			WithContext("path", path)
	}

	if err := writeAtomic(fs, path, ciphertext); err != nil {
		return witherrors.FileError("failed to write vault", path, err)
	}
	return nil
}

// Decrypt reads path and decrypts it with the identity in keyPath.
func Decrypt(fs afero.Fs, path, keyPath string) ([]byte, error) {
	identity, err := loadIdentity(fs, keyPath)
	if err != nil {
		return nil, err
	}

	ciphertext, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, witherrors.FileError("failed to read vault", path, err)
	}

	return open(identity, ciphertext, path)
}

func seal(recipient age.Recipient, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func open(identity age.Identity, ciphertext []byte, path string) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, witherrors.CryptoErrorWithHint("failed to decrypt vault",
			"the key file does not match the one used to encrypt; restore it with 'with backup restore'", err).
			WithContext("path", path)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, witherrors.WrapError(witherrors.CryptoError, "failed to read decrypted content", err).
			WithContext("path", path)
	}
	return buf.Bytes(), nil
}

// readKeyLines returns the first n lines of the key file.
func readKeyLines(fs afero.Fs, keyPath string, n int) ([]string, error) {
	f, err := fs.Open(keyPath)
	if err != nil {
		return nil, witherrors.FileError("failed to open key file", keyPath, err)
	}
	defer f.Close()

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	for len(lines) < n && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, witherrors.FileError("failed to read key file", keyPath, err)
	}

	switch {
	case len(lines) == 0:
		return nil, witherrors.NewError(witherrors.CryptoError, "key file is empty").
			WithContext("path", keyPath)
	case len(lines) < n:
		return nil, witherrors.NewError(witherrors.CryptoError, "key file is missing recipient line").
			WithContext("path", keyPath).
			WithContext("hint", "key file should contain identity and recipient lines")
	}
	return lines, nil
}

func loadRecipient(fs afero.Fs, keyPath string) (age.Recipient, error) {
	lines, err := readKeyLines(fs, keyPath, 2)
	if err != nil {
		return nil, err
	}

	recipient, err := age.ParseX25519Recipient(lines[1])
	if err != nil {
		return nil, witherrors.CryptoErrorWithHint("failed to parse recipient from key file",
			"key file may be corrupted", err).
			WithContext("path", keyPath)
	}
	return recipient, nil
}

func loadIdentity(fs afero.Fs, keyPath string) (age.Identity, error) {
	identity, err := LoadIdentity(fs, keyPath)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// writeAtomic writes data to path+".tmp" and renames it over path.
func writeAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, filePerm); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}
