package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/topcoder-platform/marathon-rating-processor/internal/engine"
	"github.com/topcoder-platform/marathon-rating-processor/internal/persistence"
)

type ratingsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRatingsRepo creates a PostgreSQL algo_rating repository.
func NewRatingsRepo(db *sqlx.DB, timeout time.Duration) persistence.RatingRepo {
	return &ratingsRepo{db: db, timeout: timeout}
}

const selectRating = `
	SELECT coder_id, algo_rating_type_id, rating, vol, num_ratings,
	       round_id, highest_rating, lowest_rating,
	       first_rated_round_id, last_rated_round_id
	FROM algo_rating
	WHERE coder_id = $1 AND algo_rating_type_id = $2`

// Persist writes one engine pass in a single transaction. Per
// participant: snapshot the prior rating tuple, finalise the
// long_comp_result row, upsert the algo_rating row. The round flag is
// NOT touched here; the orchestrator flips it after the last pass.
func (r *ratingsRepo) Persist(ctx context.Context, roundID int64, slate []engine.Participant) error {
	if len(slate) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(slate)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range slate {
		if err := r.persistOne(ctx, tx, roundID, &slate[i]); err != nil {
			return fmt.Errorf("failed to persist coder %d: %w", slate[i].CoderID, err)
		}
	}

	return tx.Commit()
}

func (r *ratingsRepo) persistOne(ctx context.Context, tx *sqlx.Tx, roundID int64, p *engine.Participant) error {
	// Re-read the rating row inside the transaction: the provisional
	// pass may already have been committed by the time the
	// non-provisional pass snapshots its priors.
	var prior persistence.AlgoRating
	hasPrior := true
	err := tx.GetContext(ctx, &prior, selectRating, p.CoderID, persistence.MarathonRatingTypeID)
	if err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("snapshot read: %w", err)
		}
		hasPrior = false
	}

	var oldRating, oldVol sql.NullInt64
	if hasPrior {
		oldRating = sql.NullInt64{Int64: int64(prior.Rating), Valid: true}
		oldVol = sql.NullInt64{Int64: int64(prior.Vol), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE long_comp_result
		SET old_rating = $1, old_vol = $2, new_rating = $3, new_vol = $4, rated_ind = 1
		WHERE round_id = $5 AND coder_id = $6`,
		oldRating, oldVol, p.NewRating, p.NewVolatility, roundID, p.CoderID)
	if err != nil {
		return fmt.Errorf("result update: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no long_comp_result row for round %d", roundID)
	}

	if hasPrior {
		_, err = tx.ExecContext(ctx, `
			UPDATE algo_rating
			SET rating = $1, vol = $2, round_id = $3,
			    num_ratings = num_ratings + 1,
			    last_rated_round_id = $3,
			    highest_rating = GREATEST(highest_rating, $1),
			    lowest_rating = LEAST(lowest_rating, $1)
			WHERE coder_id = $4 AND algo_rating_type_id = $5`,
			p.NewRating, p.NewVolatility, roundID, p.CoderID, persistence.MarathonRatingTypeID)
		if err != nil {
			return fmt.Errorf("rating update: %w", err)
		}
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO algo_rating
			(coder_id, algo_rating_type_id, rating, vol, num_ratings, round_id,
			 highest_rating, lowest_rating, first_rated_round_id, last_rated_round_id)
		VALUES ($1, $2, $3, $4, 1, $5, $3, $3, $5, $5)`,
		p.CoderID, persistence.MarathonRatingTypeID, p.NewRating, p.NewVolatility, roundID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("concurrent rating insert for coder %d: %w", p.CoderID, err)
		}
		return fmt.Errorf("rating insert: %w", err)
	}

	return nil
}
