package storage

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"coherence/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu           sync.RWMutex
	initialized  bool
	runs         map[string]model.RunRecord
	leaderboards map[string]model.Leaderboard
	mismatches   map[string]model.MismatchMatrix
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.leaderboards = make(map[string]model.Leaderboard)
	s.mismatches = make(map[string]model.MismatchMatrix)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	SortRunsNewestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) SaveLeaderboard(_ context.Context, board model.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	board.Rows = append([]model.LeaderboardRow(nil), board.Rows...)
	s.leaderboards[board.RunID] = board
	return nil
}

func (s *MemoryStore) GetLeaderboard(_ context.Context, runID string) (model.Leaderboard, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.leaderboards[runID]
	if !ok {
		return model.Leaderboard{}, false, nil
	}
	board.Rows = append([]model.LeaderboardRow(nil), board.Rows...)
	return board, true, nil
}

func (s *MemoryStore) SaveMismatch(_ context.Context, matrix model.MismatchMatrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.mismatches[matrix.RunID] = copyMismatch(matrix)
	return nil
}

func (s *MemoryStore) GetMismatch(_ context.Context, runID string) (model.MismatchMatrix, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matrix, ok := s.mismatches[runID]
	if !ok {
		return model.MismatchMatrix{}, false, nil
	}
	return copyMismatch(matrix), true, nil
}

func copyMismatch(m model.MismatchMatrix) model.MismatchMatrix {
	cells := make([]model.MismatchCell, len(m.Cells))
	for i, cell := range m.Cells {
		cell.Correlations = append([]float64(nil), cell.Correlations...)
		cells[i] = cell
	}
	m.Cells = cells
	m.Selectivity = append([]model.Selectivity(nil), m.Selectivity...)
	return m
}

// SortRunsNewestFirst orders by creation time, then id, both descending.
func SortRunsNewestFirst(runs []model.RunRecord) {
	slices.SortFunc(runs, func(a, b model.RunRecord) int {
		if c := strings.Compare(b.CreatedAtUTC, a.CreatedAtUTC); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}
