package store

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// KeyringBackend is the name of the OS keyring backend.
const KeyringBackend = "keyring"

func init() {
	mustRegister(KeyringBackend, func(opts Options) (Store, error) {
		return NewKeyringStore(opts.logger()), nil
	})
}

// KeyringStore keeps secrets in the OS secret service. The keyring service
// is the profile, the user is the secret name and the password is the value
// as text. This is the layout earlier releases wrote, so their entries stay
// readable.
type KeyringStore struct {
	logger *zap.Logger
}

// NewKeyringStore creates a keyring-backed store.
func NewKeyringStore(logger *zap.Logger) *KeyringStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyringStore{logger: logger.Named("keyring")}
}

// Get implements Store.
func (s *KeyringStore) Get(_ context.Context, profile, name string) ([]byte, error) {
	value, err := keyring.Get(profile, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, witherrors.StoreErr("failed to read from keyring", profile, err).
			WithContext("name", name)
	}
	return []byte(value), nil
}

// Set implements Store.
func (s *KeyringStore) Set(_ context.Context, profile, name string, value []byte) error {
	if !utf8.Valid(value) {
		return witherrors.NewError(witherrors.ValidationError, "keyring values must be valid UTF-8 text").
			WithContext("profile", profile).
			WithContext("name", name)
	}
	if err := keyring.Set(profile, name, string(value)); err != nil {
		return witherrors.StoreErr("failed to write to keyring", profile, err).
			WithContext("name", name)
	}
	s.logger.Debug("secret stored", zap.String("profile", profile), zap.String("name", name))
	return nil
}

// Delete implements Store.
func (s *KeyringStore) Delete(_ context.Context, profile, name string) error {
	if err := keyring.Delete(profile, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return witherrors.StoreErr("failed to delete from keyring", profile, err).
			WithContext("name", name)
	}
	s.logger.Debug("secret deleted", zap.String("profile", profile), zap.String("name", name))
	return nil
}
