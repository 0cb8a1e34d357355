// Package persistence defines the durable entities of the rating
// processor and the repository interfaces the orchestrator consumes.
// Concrete implementations live in persistence/postgres.
package persistence

import "database/sql"

// MarathonRatingTypeID is the algo_rating_type_id for marathon matches.
// The processor only ever reads and writes this rating type.
const MarathonRatingTypeID = 3

// Round is a single rated contest instance. rated_ind is flipped to 1
// exactly once, after both engine passes have been persisted.
type Round struct {
	RoundID   int64         `db:"round_id"`
	RatedInd  int           `db:"rated_ind"`
	ContestID sql.NullInt64 `db:"contest_id"`
}

// LongCompResult is one participant's outcome in one round, keyed by
// (round_id, coder_id). The old/new rating columns stay null until the
// round is rated.
type LongCompResult struct {
	RoundID          int64           `db:"round_id"`
	CoderID          int64           `db:"coder_id"`
	Attended         string          `db:"attended"`
	SystemPointTotal sql.NullFloat64 `db:"system_point_total"`
	OldRating        sql.NullInt64   `db:"old_rating"`
	OldVol           sql.NullInt64   `db:"old_vol"`
	NewRating        sql.NullInt64   `db:"new_rating"`
	NewVol           sql.NullInt64   `db:"new_vol"`
	RatedInd         int             `db:"rated_ind"`
}

// AlgoRating is a coder's current rating for one rating type, keyed by
// (coder_id, algo_rating_type_id). Created lazily on the coder's first
// rated round; num_ratings strictly increments by one per rated round.
type AlgoRating struct {
	CoderID           int64         `db:"coder_id"`
	AlgoRatingTypeID  int           `db:"algo_rating_type_id"`
	Rating            int           `db:"rating"`
	Vol               int           `db:"vol"`
	NumRatings        int           `db:"num_ratings"`
	RoundID           sql.NullInt64 `db:"round_id"`
	HighestRating     int           `db:"highest_rating"`
	LowestRating      int           `db:"lowest_rating"`
	FirstRatedRoundID sql.NullInt64 `db:"first_rated_round_id"`
	LastRatedRoundID  sql.NullInt64 `db:"last_rated_round_id"`
}
