package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dkmnx/with/internal/envparse"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/store"
	"github.com/dkmnx/with/internal/validate"
)

// Definition is one secret to write.
type Definition struct {
	Name  string
	Value string
}

// FromEntries converts parsed entries to definitions, keeping order and
// duplicates.
func FromEntries(entries []envparse.Entry) []Definition {
	return lo.Map(entries, func(e envparse.Entry, _ int) Definition {
		return Definition{Name: e.Key, Value: e.Value}
	})
}

// ImportResult reports what an import changed. Names appear once each, in
// order of first appearance in the input.
type ImportResult struct {
	Added     []string
	Updated   []string
	Unchanged []string
}

// Total is the number of distinct names imported.
func (r ImportResult) Total() int {
	return len(r.Added) + len(r.Updated) + len(r.Unchanged)
}

// Import writes defs into profile. When a name appears more than once the
// last value wins. Every name is validated before anything is written, and
// if any write fails the profile is restored to what it held before.
func (m *Manager) Import(ctx context.Context, profile string, defs []Definition) (ImportResult, error) {
	var result ImportResult

	if err := validate.ValidateProfileName(profile); err != nil {
		return result, err
	}
	if len(defs) == 0 {
		return result, witherrors.NewError(witherrors.ValidationError, "nothing to import")
	}
	if err := validateNames(defs); err != nil {
		return result, err
	}

	merged := make(map[string]string, len(defs))
	for _, d := range defs {
		merged[d.Name] = d.Value
	}
	names := lo.Uniq(lo.Map(defs, func(d Definition, _ int) string { return d.Name }))

	info, err := m.Info(ctx, profile)
	if err != nil {
		return result, err
	}

	tx, err := m.begin(ctx, profile, names)
	if err != nil {
		return result, err
	}

	for _, name := range names {
		prev, existed := tx.previous(name)
		value := merged[name]

		switch {
		case !existed:
			result.Added = append(result.Added, name)
		case string(prev) == value:
			result.Unchanged = append(result.Unchanged, name)
			info.Ensure(name)
			continue
		default:
			result.Updated = append(result.Updated, name)
		}

		if err := tx.set(name, []byte(value)); err != nil {
			return ImportResult{}, tx.rollback(err)
		}
		info.Ensure(name)
	}

	if err := m.saveInfo(ctx, profile, info); err != nil {
		return ImportResult{}, tx.rollback(err)
	}

	m.logger.Debug("import committed",
		zap.String("profile", profile),
		zap.Int("added", len(result.Added)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", len(result.Unchanged)))
	return result, nil
}

func validateNames(defs []Definition) error {
	var invalid []string
	var first error
	for _, d := range defs {
		if err := validate.ValidateSecretName(d.Name); err != nil {
			if first == nil {
				first = err
			}
			invalid = append(invalid, fmt.Sprintf("%q", d.Name))
		}
	}
	if first == nil {
		return nil
	}

	invalid = lo.Uniq(invalid)
	return witherrors.WrapError(witherrors.ValidationError,
		fmt.Sprintf("invalid secret names: %s", strings.Join(invalid, ", ")), first)
}

// importTx snapshots the stored values of the names an import touches and
// restores them on failure.
type importTx struct {
	ctx     context.Context
	m       *Manager
	profile string

	snapshot map[string][]byte // nil value: name was absent
	infoRaw  []byte            // nil: no info record
	written  []string
}

func (m *Manager) begin(ctx context.Context, profile string, names []string) (*importTx, error) {
	tx := &importTx{ctx: ctx, m: m, profile: profile, snapshot: make(map[string][]byte, len(names))}

	for _, name := range append([]string{InfoName}, names...) {
		value, err := m.store.Get(ctx, profile, name)
		if errors.Is(err, store.ErrNotFound) {
			value = nil
		} else if err != nil {
			return nil, witherrors.StoreErr("failed to snapshot profile before import", profile, err)
		} else if value == nil {
			value = []byte{}
		}

		if name == InfoName {
			tx.infoRaw = value
			continue
		}
		tx.snapshot[name] = value
	}
	return tx, nil
}

func (tx *importTx) previous(name string) ([]byte, bool) {
	v := tx.snapshot[name]
	return v, v != nil
}

func (tx *importTx) set(name string, value []byte) error {
	if err := tx.m.store.Set(tx.ctx, tx.profile, name, value); err != nil {
		return err
	}
	tx.written = append(tx.written, name)
	return nil
}

// rollback restores every written name and the info record, then returns
// cause wrapped with the outcome.
func (tx *importTx) rollback(cause error) error {
	var failures []error

	restore := func(name string, prev []byte) {
		var err error
		if prev == nil {
			err = tx.m.store.Delete(tx.ctx, tx.profile, name)
			if errors.Is(err, store.ErrNotFound) {
				err = nil
			}
		} else {
			err = tx.m.store.Set(tx.ctx, tx.profile, name, prev)
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
		}
	}

	for i := len(tx.written) - 1; i >= 0; i-- {
		name := tx.written[i]
		restore(name, tx.snapshot[name])
	}
	restore(InfoName, tx.infoRaw)

	if len(failures) > 0 {
		tx.m.logger.Error("import rollback incomplete",
			zap.String("profile", tx.profile), zap.Int("failures", len(failures)))
		return witherrors.StoreErr("import failed and rollback also failed", tx.profile, cause).
			WithContext("rollback_error", errors.Join(failures...).Error())
	}

	tx.m.logger.Debug("import rolled back", zap.String("profile", tx.profile), zap.Int("restored", len(tx.written)))
	return witherrors.StoreErr("import failed, changes rolled back", tx.profile, cause)
}
