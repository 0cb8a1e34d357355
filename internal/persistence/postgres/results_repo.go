package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/topcoder-platform/marathon-rating-processor/internal/engine"
	"github.com/topcoder-platform/marathon-rating-processor/internal/persistence"
)

type resultsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewResultsRepo creates a PostgreSQL long_comp_result repository.
func NewResultsRepo(db *sqlx.DB, timeout time.Duration) persistence.ResultRepo {
	return &resultsRepo{db: db, timeout: timeout}
}

// ListUnrated materialises the unrated slate for a round. Each row is
// joined against the coder's current marathon rating; first-timers come
// back with the (0, 0, 0) marker the engine normalises.
func (r *resultsRepo) ListUnrated(ctx context.Context, roundID int64) ([]engine.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT lcr.coder_id,
		       COALESCE(lcr.system_point_total, 0) AS score,
		       COALESCE(ar.rating, 0) AS rating,
		       COALESCE(ar.vol, 0) AS vol,
		       COALESCE(ar.num_ratings, 0) AS num_ratings
		FROM long_comp_result lcr
		LEFT JOIN algo_rating ar
		       ON ar.coder_id = lcr.coder_id
		      AND ar.algo_rating_type_id = $2
		WHERE lcr.round_id = $1
		  AND lcr.attended IN ('Y', 'y')
		  AND lcr.new_rating IS NULL
		  AND lcr.new_vol IS NULL
		ORDER BY lcr.system_point_total DESC`

	rows, err := r.db.QueryxContext(ctx, query, roundID, persistence.MarathonRatingTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unrated results: %w", err)
	}
	defer rows.Close()

	var slate []engine.Participant
	for rows.Next() {
		var p engine.Participant
		if err := rows.Scan(&p.CoderID, &p.Score, &p.Rating, &p.Volatility, &p.NumRatings); err != nil {
			return nil, fmt.Errorf("failed to scan unrated result: %w", err)
		}
		slate = append(slate, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unrated results: %w", err)
	}

	return slate, nil
}

// ListAbsentCoders returns the coders whose attendance is still N.
func (r *resultsRepo) ListAbsentCoders(ctx context.Context, roundID int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT coder_id
		FROM long_comp_result
		WHERE round_id = $1 AND attended = 'N'`

	var coders []int64
	if err := r.db.SelectContext(ctx, &coders, query, roundID); err != nil {
		return nil, fmt.Errorf("failed to query absent coders: %w", err)
	}

	return coders, nil
}

// MarkAttended flips a single coder's attendance from N to Y.
func (r *resultsRepo) MarkAttended(ctx context.Context, roundID, coderID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE long_comp_result
		SET attended = 'Y'
		WHERE round_id = $1 AND coder_id = $2 AND attended = 'N'`

	res, err := r.db.ExecContext(ctx, query, roundID, coderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark attendance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read attendance update count: %w", err)
	}

	return n > 0, nil
}
