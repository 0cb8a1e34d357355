package persistence

import (
	"context"

	"github.com/topcoder-platform/marathon-rating-processor/internal/engine"
)

// RoundRepo resolves and finalises rounds.
type RoundRepo interface {
	// FindByContestID returns the round mapped to a legacy contest id,
	// or nil when no such mapping exists.
	FindByContestID(ctx context.Context, contestID int64) (*Round, error)

	// MarkRated flips rated_ind to 1. Called once per round, after both
	// engine passes have been persisted.
	MarkRated(ctx context.Context, roundID int64) error
}

// ResultRepo reads and reconciles per-round results.
type ResultRepo interface {
	// ListUnrated loads the unrated slate for a round: rows with
	// attended in (Y, y) and both new_rating and new_vol null, ordered
	// by system_point_total descending, each seeded with the coder's
	// current marathon rating tuple (zeros for first-timers).
	ListUnrated(ctx context.Context, roundID int64) ([]engine.Participant, error)

	// ListAbsentCoders returns coders recorded with attended = 'N'.
	ListAbsentCoders(ctx context.Context, roundID int64) ([]int64, error)

	// MarkAttended flips attended from N to Y for one coder. Returns
	// false when the row was not in the N state.
	MarkAttended(ctx context.Context, roundID, coderID int64) (bool, error)
}

// RatingRepo owns the algo_rating table and the transactional write-back
// of an engine pass.
type RatingRepo interface {
	// Persist writes one engine pass in a single transaction: per
	// participant it snapshots the prior rating tuple into
	// long_comp_result.old_rating/old_vol, records the new tuple with
	// rated_ind = 1, and upserts the algo_rating row (num_ratings + 1,
	// extrema refresh, first/last rated round ids).
	Persist(ctx context.Context, roundID int64, slate []engine.Participant) error
}

// Repository aggregates the persistence interfaces handed to the
// orchestrator.
type Repository struct {
	Rounds  RoundRepo
	Results ResultRepo
	Ratings RatingRepo
}
