package store

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dkmnx/with/internal/crypto"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/validate"
)

// AgeBackend is the name of the encrypted file backend.
const AgeBackend = "age"

const (
	// VaultFormatVersion is written into every vault file.
	VaultFormatVersion = "1.0.0"

	// vaultFormatConstraint is the range of vault versions this build reads.
	vaultFormatConstraint = "^1"

	profilesDir = "profiles"
	vaultExt    = ".age"
)

var supportedVaults = semver.MustParse(VaultFormatVersion)

func init() {
	mustRegister(AgeBackend, func(opts Options) (Store, error) {
		if opts.Dir == "" {
			return nil, witherrors.NewError(witherrors.ConfigError, "age backend needs a config directory")
		}
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewAgeStore(fs, opts.Dir, opts.logger()), nil
	})
}

// vaultFile is the decrypted content of one profile's vault.
type vaultFile struct {
	Version string            `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
}

// AgeStore keeps one age-encrypted YAML file per profile under
// <dir>/profiles, encrypted to the key in <dir>/age.key.
type AgeStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

// NewAgeStore creates a store rooted at dir. Nothing is written until the
// first Set.
func NewAgeStore(fs afero.Fs, dir string, logger *zap.Logger) *AgeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgeStore{fs: fs, dir: dir, logger: logger.Named("age")}
}

func (s *AgeStore) keyPath() string {
	return filepath.Join(s.dir, crypto.KeyFileName)
}

func (s *AgeStore) vaultPath(profile string) (string, error) {
	if err := validate.ValidateProfileName(profile); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, profilesDir, profile+vaultExt), nil
}

// Get implements Store.
func (s *AgeStore) Get(_ context.Context, profile, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(profile)
	if err != nil {
		return nil, err
	}

	encoded, ok := v.Entries[name]
	if !ok {
		return nil, ErrNotFound
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, witherrors.StoreErr("corrupt vault entry", profile, err).
			WithContext("name", name)
	}
	return value, nil
}

// Set implements Store.
func (s *AgeStore) Set(_ context.Context, profile, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := crypto.EnsureKeyExists(s.fs, s.dir); err != nil {
		return err
	}

	v, err := s.load(profile)
	if err != nil {
		return err
	}
	v.Entries[name] = base64.StdEncoding.EncodeToString(value)

	if err := s.save(profile, v); err != nil {
		return err
	}
	s.logger.Debug("secret stored", zap.String("profile", profile), zap.String("name", name))
	return nil
}

// Delete implements Store. Removing the last entry removes the vault file.
func (s *AgeStore) Delete(_ context.Context, profile, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.load(profile)
	if err != nil {
		return err
	}
	if _, ok := v.Entries[name]; !ok {
		return ErrNotFound
	}
	delete(v.Entries, name)

	if err := s.save(profile, v); err != nil {
		return err
	}
	s.logger.Debug("secret deleted", zap.String("profile", profile), zap.String("name", name))
	return nil
}

// Profiles lists the profiles that have a vault file, sorted.
func (s *AgeStore) Profiles(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.vaultPaths()
	if err != nil {
		return nil, err
	}

	profiles := make([]string, 0, len(paths))
	for _, p := range paths {
		profiles = append(profiles, strings.TrimSuffix(filepath.Base(p), vaultExt))
	}
	return profiles, nil
}

// VaultPaths lists every vault file, sorted.
func (s *AgeStore) VaultPaths() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vaultPaths()
}

// RotateKey re-encrypts every vault with a freshly generated key.
func (s *AgeStore) RotateKey(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.vaultPaths()
	if err != nil {
		return err
	}
	if err := crypto.RotateKey(s.fs, s.dir, paths); err != nil {
		return err
	}
	s.logger.Debug("key rotated", zap.Int("vaults", len(paths)))
	return nil
}

func (s *AgeStore) vaultPaths() ([]string, error) {
	dir := filepath.Join(s.dir, profilesDir)
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, witherrors.FileError("failed to list vaults", dir, err)
	}

	var paths []string
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), vaultExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, info.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// load returns the profile's vault, or an empty one when no file exists.
func (s *AgeStore) load(profile string) (*vaultFile, error) {
	path, err := s.vaultPath(profile)
	if err != nil {
		return nil, err
	}

	empty := &vaultFile{Version: VaultFormatVersion, Entries: map[string]string{}}

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return nil, witherrors.FileError("failed to check vault", path, err)
	}
	if !exists {
		return empty, nil
	}

	plain, err := crypto.Decrypt(s.fs, path, s.keyPath())
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(plain)

	var v vaultFile
	if err := yaml.Unmarshal(plain, &v); err != nil {
		return nil, witherrors.StoreErr("failed to parse vault", profile, err).
			WithContext("path", path)
	}
	if err := checkVaultVersion(v.Version); err != nil {
		return nil, err.WithContext("path", path)
	}
	if v.Entries == nil {
		v.Entries = map[string]string{}
	}
	return &v, nil
}

func (s *AgeStore) save(profile string, v *vaultFile) error {
	path, err := s.vaultPath(profile)
	if err != nil {
		return err
	}

	if len(v.Entries) == 0 {
		if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return witherrors.FileError("failed to remove empty vault", path, err)
		}
		return nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return witherrors.FileError("failed to create vault directory", filepath.Dir(path), err)
	}

	v.Version = VaultFormatVersion
	plain, err := yaml.Marshal(v)
	if err != nil {
		return witherrors.StoreErr("failed to encode vault", profile, err)
	}
	defer crypto.Zero(plain)

	return crypto.Encrypt(s.fs, path, s.keyPath(), plain)
}

func checkVaultVersion(version string) *witherrors.WithError {
	if version == "" {
		return witherrors.NewError(witherrors.StoreError, "vault has no format version")
	}

	got, err := semver.NewVersion(version)
	if err != nil {
		return witherrors.WrapError(witherrors.StoreError, "vault has an invalid format version", err).
			WithContext("version", version)
	}

	constraint, err := semver.NewConstraint(vaultFormatConstraint)
	if err != nil {
		return witherrors.WrapError(witherrors.StoreError, "invalid vault format constraint", err)
	}
	if !constraint.Check(got) {
		hint := "the vault was written by a newer release of with; upgrade to read it"
		if got.LessThan(supportedVaults) {
			hint = "the vault format is too old to read"
		}
		return witherrors.NewError(witherrors.StoreError, "unsupported vault format version").
			WithContext("version", version).
			WithContext("hint", hint)
	}
	return nil
}
