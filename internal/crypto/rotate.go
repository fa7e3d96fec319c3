package crypto

import (
	"path/filepath"

	"filippo.io/age"
	"github.com/spf13/afero"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// RotateKey replaces the key in dir with a fresh one and re-encrypts every
// vault in vaultPaths with it. All vaults are decrypted before anything is
// written. If re-encryption fails part way, the old key and the original
// vault contents are put back.
func RotateKey(fs afero.Fs, dir string, vaultPaths []string) error {
	keyPath := filepath.Join(dir, KeyFileName)

	oldIdentity, err := loadIdentity(fs, keyPath)
	if err != nil {
		return err
	}
	oldKey, err := afero.ReadFile(fs, keyPath)
	if err != nil {
		return witherrors.FileError("failed to read key file", keyPath, err)
	}

	originals := make(map[string][]byte, len(vaultPaths))
	plaintexts := make(map[string][]byte, len(vaultPaths))
	for _, p := range vaultPaths {
		ciphertext, err := afero.ReadFile(fs, p)
		if err != nil {
			return witherrors.FileError("failed to read vault", p, err)
		}
		plain, err := open(oldIdentity, ciphertext, p)
		if err != nil {
			return witherrors.WrapError(witherrors.CryptoError,
				"failed to decrypt vault with the current key, rotation aborted", err)
		}
		originals[p] = ciphertext
		plaintexts[p] = plain
	}
	defer func() {
		for _, plain := range plaintexts {
			Zero(plain)
		}
	}()

	newIdentity, err := age.GenerateX25519Identity()
	if err != nil {
		return witherrors.WrapError(witherrors.CryptoError, "failed to generate encryption key", err)
	}

	backupPath := keyPath + ".backup"
	if err := afero.WriteFile(fs, backupPath, oldKey, filePerm); err != nil {
		return witherrors.FileError("failed to back up key before rotation", backupPath, err)
	}

	newKey := newIdentity.String() + "\n" + newIdentity.Recipient().String() + "\n"
	if err := writeAtomic(fs, keyPath, []byte(newKey)); err != nil {
		_ = fs.Remove(backupPath)
		return witherrors.FileError("failed to replace key file", keyPath, err)
	}

	var written []string
	for _, p := range vaultPaths {
		ciphertext, err := seal(newIdentity.Recipient(), plaintexts[p])
		if err == nil {
			err = writeAtomic(fs, p, ciphertext)
		}
		if err != nil {
			return rollback(fs, keyPath, backupPath, oldKey, written, originals, err)
		}
		written = append(written, p)
	}

	_ = fs.Remove(backupPath)
	return nil
}

func rollback(fs afero.Fs, keyPath, backupPath string, oldKey []byte, written []string, originals map[string][]byte, cause error) error {
	if err := writeAtomic(fs, keyPath, oldKey); err != nil {
		return witherrors.WrapError(witherrors.CryptoError,
			"failed to re-encrypt vaults and failed to restore the old key", cause).
			WithContext("restore_error", err.Error()).
			WithContext("backup_path", backupPath)
	}
	for _, p := range written {
		if err := writeAtomic(fs, p, originals[p]); err != nil {
			return witherrors.WrapError(witherrors.CryptoError,
				"failed to re-encrypt vaults and failed to restore a vault", cause).
				WithContext("path", p).
				WithContext("restore_error", err.Error())
		}
	}
	_ = fs.Remove(backupPath)
	return witherrors.WrapError(witherrors.CryptoError,
		"failed to re-encrypt vaults, old key restored", cause)
}

// Zero overwrites b with zero bytes.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
