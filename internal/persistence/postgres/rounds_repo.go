// Package postgres implements the persistence interfaces against
// PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/topcoder-platform/marathon-rating-processor/internal/persistence"
)

type roundsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRoundsRepo creates a PostgreSQL round repository.
func NewRoundsRepo(db *sqlx.DB, timeout time.Duration) persistence.RoundRepo {
	return &roundsRepo{db: db, timeout: timeout}
}

// FindByContestID resolves a round from its legacy contest id.
func (r *roundsRepo) FindByContestID(ctx context.Context, contestID int64) (*persistence.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT round_id, rated_ind, contest_id
		FROM round
		WHERE contest_id = $1
		ORDER BY round_id DESC
		LIMIT 1`

	var round persistence.Round
	err := r.db.GetContext(ctx, &round, query, contestID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find round by contest id: %w", err)
	}

	return &round, nil
}

// MarkRated flips rated_ind on the round row.
func (r *roundsRepo) MarkRated(ctx context.Context, roundID int64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE round SET rated_ind = 1 WHERE round_id = $1`, roundID)
	if err != nil {
		return fmt.Errorf("failed to mark round rated: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("round %d not found", roundID)
	}

	return nil
}
