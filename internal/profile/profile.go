// Package profile groups secrets into named profiles on top of a store.
//
// A profile's member list lives in the store itself under InfoName, so a
// backend needs no listing support to know what a profile holds.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/store"
	"github.com/dkmnx/with/internal/validate"
)

// InfoName is the reserved store name holding a profile's member list.
const InfoName = "__profile_info"

// ErrSecretNotFound is returned when a named secret is not in the profile.
var ErrSecretNotFound = errors.New("secret not found in profile")

// Info lists the secrets of one profile in the order they were first added.
// It is written as JSON, the layout earlier releases used, and read as YAML,
// a superset that also accepts block-style records.
type Info struct {
	Members []string `yaml:"members" json:"members"`
}

// Has reports whether name is a member.
func (i *Info) Has(name string) bool {
	return slices.Contains(i.Members, name)
}

// Ensure adds name unless it is already a member.
func (i *Info) Ensure(name string) {
	if !i.Has(name) {
		i.Members = append(i.Members, name)
	}
}

// Remove drops name from the member list.
func (i *Info) Remove(name string) {
	i.Members = lo.Without(i.Members, name)
}

// Manager reads and writes profiles through a store.
type Manager struct {
	store  store.Store
	logger *zap.Logger
}

// NewManager creates a Manager over s.
func NewManager(s store.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: s, logger: logger.Named("profile")}
}

// Info returns the member list of profile. A profile that was never written
// has an empty list.
func (m *Manager) Info(ctx context.Context, profile string) (*Info, error) {
	if err := validate.ValidateProfileName(profile); err != nil {
		return nil, err
	}

	data, err := m.store.Get(ctx, profile, InfoName)
	if errors.Is(err, store.ErrNotFound) {
		return &Info{}, nil
	}
	if err != nil {
		return nil, err
	}

	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, witherrors.StoreErr("corrupt profile info", profile, err)
	}
	return &info, nil
}

func (m *Manager) saveInfo(ctx context.Context, profile string, info *Info) error {
	if len(info.Members) == 0 {
		err := m.store.Delete(ctx, profile, InfoName)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	}

	data, err := json.Marshal(info)
	if err != nil {
		return witherrors.StoreErr("failed to encode profile info", profile, err)
	}
	return m.store.Set(ctx, profile, InfoName, data)
}

// Members returns the secret names of profile, sorted.
func (m *Manager) Members(ctx context.Context, profile string) ([]string, error) {
	info, err := m.Info(ctx, profile)
	if err != nil {
		return nil, err
	}
	names := slices.Clone(info.Members)
	sort.Strings(names)
	return names, nil
}

// Secrets returns every secret of profile. Members whose value has gone
// missing from the store are skipped.
func (m *Manager) Secrets(ctx context.Context, profile string) (map[string]string, error) {
	info, err := m.Info(ctx, profile)
	if err != nil {
		return nil, err
	}

	secrets := make(map[string]string, len(info.Members))
	for _, name := range info.Members {
		value, err := m.store.Get(ctx, profile, name)
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("profile member has no stored value",
				zap.String("profile", profile), zap.String("name", name))
			continue
		}
		if err != nil {
			return nil, err
		}
		secrets[name] = string(value)
	}
	return secrets, nil
}

// Environ returns the secrets of profile as sorted KEY=value strings.
func (m *Manager) Environ(ctx context.Context, profile string) ([]string, error) {
	secrets, err := m.Secrets(ctx, profile)
	if err != nil {
		return nil, err
	}

	env := lo.MapToSlice(secrets, func(k, v string) string { return k + "=" + v })
	sort.Strings(env)
	return env, nil
}

// Get returns one secret of profile.
func (m *Manager) Get(ctx context.Context, profile, name string) (string, error) {
	info, err := m.Info(ctx, profile)
	if err != nil {
		return "", err
	}
	if !info.Has(name) {
		return "", ErrSecretNotFound
	}

	value, err := m.store.Get(ctx, profile, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Set stores one secret. It goes through the same transaction as Import.
func (m *Manager) Set(ctx context.Context, profile, name, value string) error {
	_, err := m.Import(ctx, profile, []Definition{{Name: name, Value: value}})
	return err
}

// Unset removes one secret from profile.
func (m *Manager) Unset(ctx context.Context, profile, name string) error {
	info, err := m.Info(ctx, profile)
	if err != nil {
		return err
	}
	if !info.Has(name) {
		return ErrSecretNotFound
	}

	if err := m.store.Delete(ctx, profile, name); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	info.Remove(name)
	if err := m.saveInfo(ctx, profile, info); err != nil {
		return err
	}

	m.logger.Debug("secret removed", zap.String("profile", profile), zap.String("name", name))
	return nil
}

// Delete removes every secret of profile and its member list. It returns
// the number of secrets removed.
func (m *Manager) Delete(ctx context.Context, profile string) (int, error) {
	info, err := m.Info(ctx, profile)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range info.Members {
		err := m.store.Delete(ctx, profile, name)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		removed++
	}

	if err := m.saveInfo(ctx, profile, &Info{}); err != nil {
		return removed, err
	}

	m.logger.Debug("profile deleted", zap.String("profile", profile), zap.Int("secrets", removed))
	return removed, nil
}
