// Package recoveryphrase turns the age key into a phrase that can be written
// down, and rebuilds the key file from it.
//
// A phrase is the bech32 body of the AGE-SECRET-KEY-1 identity split into
// groups of five characters, followed by an eight character CRC32 checksum
// of the identity:
//
//	qpzry-9x8gf-...-2tvdw-4F9C21A0
package recoveryphrase

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/spf13/afero"

	"github.com/dkmnx/with/internal/crypto"
	witherrors "github.com/dkmnx/with/internal/errors"
)

const (
	identityPrefix = "AGE-SECRET-KEY-1"
	groupSize      = 5
	checksumLength = 8
)

// Create returns the recovery phrase for the key stored at keyPath.
func Create(fs afero.Fs, keyPath string) (string, error) {
	identity, err := crypto.LoadIdentity(fs, keyPath)
	if err != nil {
		return "", err
	}
	return encode(identity), nil
}

func encode(identity *age.X25519Identity) string {
	s := identity.String()
	body := strings.ToLower(strings.TrimPrefix(s, identityPrefix))

	words := make([]string, 0, len(body)/groupSize+2)
	for len(body) > groupSize {
		words = append(words, body[:groupSize])
		body = body[groupSize:]
	}
	if body != "" {
		words = append(words, body)
	}
	words = append(words, checksum(s))
	return strings.Join(words, "-")
}

// Decode parses a phrase back into the identity it was created from.
// Surrounding whitespace and letter case are ignored.
func Decode(phrase string) (*age.X25519Identity, error) {
	words := strings.Split(strings.Join(strings.Fields(phrase), ""), "-")
	if len(words) < 2 {
		return nil, witherrors.NewError(witherrors.CryptoError, "recovery phrase too short")
	}

	provided := strings.ToUpper(words[len(words)-1])
	if len(provided) != checksumLength {
		return nil, witherrors.NewError(witherrors.CryptoError, "recovery phrase has no checksum").
			WithContext("hint", "the last group must be the 8 character checksum")
	}

	s := identityPrefix + strings.ToUpper(strings.Join(words[:len(words)-1], ""))
	if checksum(s) != provided {
		return nil, witherrors.NewError(witherrors.CryptoError,
			"recovery phrase is invalid or contains typos")
	}

	identity, err := age.ParseX25519Identity(s)
	if err != nil {
		return nil, witherrors.WrapError(witherrors.CryptoError, "recovery phrase does not hold an age key", err)
	}
	return identity, nil
}

// Recover writes the key encoded in phrase to <configDir>/age.key. An
// existing key is only replaced when force is set.
func Recover(fs afero.Fs, configDir, phrase string, force bool) error {
	identity, err := Decode(phrase)
	if err != nil {
		return err
	}

	keyPath := filepath.Join(configDir, crypto.KeyFileName)
	if _, err := fs.Stat(keyPath); err == nil && !force {
		return witherrors.NewError(witherrors.ValidationError, "a key already exists").
			WithContext("path", keyPath).
			WithContext("hint", "pass --force to replace it")
	} else if err != nil && !os.IsNotExist(err) {
		return witherrors.FileError("failed to check key file status", keyPath, err)
	}

	if err := fs.MkdirAll(configDir, 0700); err != nil {
		return witherrors.FileError("failed to create config directory", configDir, err)
	}
	return crypto.WriteKey(fs, keyPath, identity)
}

func checksum(s string) string {
	return fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte(s)))
}
