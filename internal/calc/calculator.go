// Package calc orchestrates a round calculation: resolve the round,
// reconcile attendance, load the unrated slate, run the two-pass Qubits
// engine, and persist the results. It is the only component that
// composes I/O and compute.
package calc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/topcoder-platform/marathon-rating-processor/internal/engine"
	"github.com/topcoder-platform/marathon-rating-processor/internal/metrics"
	"github.com/topcoder-platform/marathon-rating-processor/internal/persistence"
	"github.com/topcoder-platform/marathon-rating-processor/internal/topcoder"
)

// Status is the outcome of a round calculation.
type Status string

const (
	StatusSuccess           Status = "SUCCESS"
	StatusAlreadyCalculated Status = "ALREADY_CALCULATED"
)

// SubmissionLister is the slice of the V5 client the reconciler needs.
type SubmissionLister interface {
	ListSubmissions(ctx context.Context, challengeID string) ([]topcoder.Submission, error)
}

// Calculator runs round calculations against a repository set.
type Calculator struct {
	repos *persistence.Repository
	subs  SubmissionLister
}

// NewCalculator creates a round calculator. subs may be nil, in which
// case attendance reconciliation is skipped entirely.
func NewCalculator(repos *persistence.Repository, subs SubmissionLister) *Calculator {
	return &Calculator{repos: repos, subs: subs}
}

// Calculate is the autopilot entry point: resolve the round from the
// legacy contest id, reconcile attendance best-effort, then rate.
func (c *Calculator) Calculate(ctx context.Context, challengeID string, legacyID int64) (Status, error) {
	roundID, err := c.resolveRound(ctx, legacyID)
	if err != nil {
		return "", err
	}

	c.Reconcile(ctx, roundID, challengeID)

	return c.CalculateRound(ctx, roundID)
}

// CalculateRound rates an already-resolved round: load the unrated
// slate, run the provisional and non-provisional passes, persist each,
// then flip the round's rated flag.
func (c *Calculator) CalculateRound(ctx context.Context, roundID int64) (Status, error) {
	slate, err := c.repos.Results.ListUnrated(ctx, roundID)
	if err != nil {
		return "", fmt.Errorf("failed to load unrated slate for round %d: %w", roundID, err)
	}

	if len(slate) == 0 {
		log.Info().Int64("round_id", roundID).Msg("no unrated participants, round already calculated")
		metrics.RoundsSkipped.Inc()
		return StatusAlreadyCalculated, nil
	}

	log.Info().Int64("round_id", roundID).Int("participants", len(slate)).Msg("rating round")

	// Provisional pass: the whole field competes, but only first-timers
	// keep their results. Their initial placement is calibrated against
	// everyone they actually played.
	start := time.Now()
	full := engine.Run(slate)
	metrics.EnginePassDuration.WithLabelValues("provisional").Observe(time.Since(start).Seconds())

	var firstTimers []engine.Participant
	for _, p := range full {
		if p.NumRatings == 1 {
			firstTimers = append(firstTimers, p)
		}
	}
	if err := c.repos.Ratings.Persist(ctx, roundID, firstTimers); err != nil {
		return "", fmt.Errorf("failed to persist provisional pass for round %d: %w", roundID, err)
	}

	// Non-provisional pass: experienced participants are re-rated
	// against the experienced subfield only, so provisional entrants do
	// not perturb established ratings.
	var experienced []engine.Participant
	for _, p := range slate {
		if p.NumRatings > 0 {
			experienced = append(experienced, p)
		}
	}

	start = time.Now()
	rated := engine.Run(experienced)
	metrics.EnginePassDuration.WithLabelValues("non_provisional").Observe(time.Since(start).Seconds())

	if err := c.repos.Ratings.Persist(ctx, roundID, rated); err != nil {
		return "", fmt.Errorf("failed to persist non-provisional pass for round %d: %w", roundID, err)
	}

	if err := c.repos.Rounds.MarkRated(ctx, roundID); err != nil {
		return "", fmt.Errorf("failed to mark round %d rated: %w", roundID, err)
	}

	log.Info().
		Int64("round_id", roundID).
		Int("first_timers", len(firstTimers)).
		Int("experienced", len(experienced)).
		Msg("round rated")
	metrics.RoundsRated.Inc()

	return StatusSuccess, nil
}

// LoadCoders hands a rated round off to the data warehouse. Legacy
// hand-off, intentionally a no-op here.
func (c *Calculator) LoadCoders(ctx context.Context, roundID int64) error {
	log.Info().Int64("round_id", roundID).Msg("loadCoders requested (stub)")
	return nil
}

// LoadRatings hands rating history off to the data warehouse. Legacy
// hand-off, intentionally a no-op here.
func (c *Calculator) LoadRatings(ctx context.Context, roundID int64) error {
	log.Info().Int64("round_id", roundID).Msg("loadRatings requested (stub)")
	return nil
}

// resolveRound maps a legacy contest id to a round. Rounds created
// before the contest-id mapping keep using the legacy id as the round id.
func (c *Calculator) resolveRound(ctx context.Context, legacyID int64) (int64, error) {
	round, err := c.repos.Rounds.FindByContestID(ctx, legacyID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve round for contest %d: %w", legacyID, err)
	}
	if round == nil {
		log.Debug().Int64("legacy_id", legacyID).Msg("no round mapped to contest id, using legacy id as round id")
		return legacyID, nil
	}
	return round.RoundID, nil
}
