package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"soltrader/internal/domain"
)

// DefaultDebounce batches bursts of state writes without losing ordering.
const DefaultDebounce = 250 * time.Millisecond

// FileStateStore persists the engine state as a JSON file. Writes go through
// a single debounced path: the latest scheduled state wins and is written
// atomically via a temp file rename.
type FileStateStore struct {
	path     string
	debounce time.Duration
	defaults func() *domain.EngineState

	mu      sync.Mutex
	pending *domain.EngineState
	timer   *time.Timer

	logger zerolog.Logger
}

// NewFileStateStore creates a file-backed state store. defaults supplies the
// state used when the file is missing or malformed. debounce <= 0 writes
// synchronously.
func NewFileStateStore(path string, debounce time.Duration, defaults func() *domain.EngineState) *FileStateStore {
	return &FileStateStore{
		path:     path,
		debounce: debounce,
		defaults: defaults,
		logger:   log.With().Str("component", "statefile").Logger(),
	}
}

// Load implements StateStore.
func (s *FileStateStore) Load(_ context.Context) (*domain.EngineState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("state file unreadable, starting fresh")
		}
		return s.defaults(), nil
	}

	var state domain.EngineState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file malformed, starting fresh")
		return s.defaults(), nil
	}
	if state.Positions == nil {
		state.Positions = []domain.Position{}
	}
	return &state, nil
}

// Save implements StateStore.
func (s *FileStateStore) Save(_ context.Context, state *domain.EngineState) error {
	if state == nil {
		return ErrInvalidInput
	}
	copied := *state
	copied.Positions = append([]domain.Position(nil), state.Positions...)

	if s.debounce <= 0 {
		return s.write(&copied)
	}

	s.mu.Lock()
	s.pending = &copied
	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, s.flush)
	}
	s.mu.Unlock()
	return nil
}

// Close implements StateStore.
func (s *FileStateStore) Close() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if pending != nil {
		return s.write(pending)
	}
	return nil
}

func (s *FileStateStore) flush() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if pending == nil {
		return
	}
	if err := s.write(pending); err != nil {
		s.logger.Error().Err(err).Msg("state write failed")
	}
}

// write persists atomically: full write to a temp file, then rename.
func (s *FileStateStore) write(state *domain.EngineState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

var _ StateStore = (*FileStateStore)(nil)
