package storage

import (
	"context"

	"coherence/internal/model"
)

// Store persists sweep runs and their results, keyed by run id.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first; limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveLeaderboard(ctx context.Context, board model.Leaderboard) error
	GetLeaderboard(ctx context.Context, runID string) (model.Leaderboard, bool, error)
	SaveMismatch(ctx context.Context, matrix model.MismatchMatrix) error
	GetMismatch(ctx context.Context, runID string) (model.MismatchMatrix, bool, error)
}
