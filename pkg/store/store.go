// Package store persists conversation history and the theme preference in
// a kv.Store, tolerating missing and corrupt records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/store/kv"
)

// Record keys.
const (
	KeyHistory = "history"
	KeyTheme   = "theme"
)

// Theme is the UI color preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Store is the persistence adapter.
type Store struct {
	kv     kv.Store
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report discarded records.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New wraps a kv.Store.
func New(backend kv.Store, opts ...Option) *Store {
	s := &Store{kv: backend, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadHistory returns the persisted history. A missing record yields an
// empty history. A record that does not decode, or that is not a sequence
// of (user, model) pairs, is deleted and an empty history returned.
func (s *Store) LoadHistory(ctx context.Context) ([]types.Message, error) {
	raw, ok, err := s.kv.Get(ctx, KeyHistory)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var history []types.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, s.discard(ctx, KeyHistory, err)
	}
	if err := types.ValidateHistory(history); err != nil {
		return nil, s.discard(ctx, KeyHistory, err)
	}
	return history, nil
}

// SaveHistory replaces the persisted history.
func (s *Store) SaveHistory(ctx context.Context, history []types.Message) error {
	if history == nil {
		history = []types.Message{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Set(ctx, KeyHistory, string(data)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// ClearHistory deletes the persisted history.
func (s *Store) ClearHistory(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyHistory); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// LoadTheme returns the persisted theme. ok is false when none is stored
// or the stored value was unknown, in which case the record is deleted.
func (s *Store) LoadTheme(ctx context.Context) (Theme, bool, error) {
	raw, ok, err := s.kv.Get(ctx, KeyTheme)
	if err != nil {
		return "", false, fmt.Errorf("load theme: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	t := Theme(raw)
	if !t.Valid() {
		return "", false, s.discard(ctx, KeyTheme, fmt.Errorf("unknown theme %q", raw))
	}
	return t, true, nil
}

// SaveTheme persists the theme.
func (s *Store) SaveTheme(ctx context.Context, t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("save theme: unknown theme %q", t)
	}
	if err := s.kv.Set(ctx, KeyTheme, string(t)); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// discard removes a corrupt record. Only a failure to delete is returned.
func (s *Store) discard(ctx context.Context, key string, cause error) error {
	corrupt := &core.Error{Kind: core.KindCorrupted, Op: "load " + key, Err: cause}
	s.logger.Warn("discarding corrupt record", "key", key, "err", corrupt)
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("discard %s: %w", key, err)
	}
	return nil
}
