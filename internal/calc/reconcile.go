package calc

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/topcoder-platform/marathon-rating-processor/internal/metrics"
	"github.com/topcoder-platform/marathon-rating-processor/internal/topcoder"
)

// Reconcile cross-checks recorded attendance against the submission
// catalogue: any coder still marked absent who has a final graded
// submission is flipped to attended. Availability of the submission API
// is not a precondition for rating; every failure here is logged and
// swallowed so the round proceeds with the attendance data it has.
func (c *Calculator) Reconcile(ctx context.Context, roundID int64, challengeID string) {
	if c.subs == nil {
		return
	}

	absent, err := c.repos.Results.ListAbsentCoders(ctx, roundID)
	if err != nil {
		log.Warn().Err(err).Int64("round_id", roundID).Msg("attendance reconciliation skipped: absent list unavailable")
		metrics.ReconcileFailures.Inc()
		return
	}
	if len(absent) == 0 {
		return
	}

	submissions, err := c.subs.ListSubmissions(ctx, challengeID)
	if err != nil {
		log.Warn().Err(err).
			Int64("round_id", roundID).
			Str("challenge_id", challengeID).
			Msg("attendance reconciliation skipped: submission service unavailable")
		metrics.ReconcileFailures.Inc()
		return
	}

	graded := latestGradedByMember(submissions)

	flipped := 0
	for _, coderID := range absent {
		if _, ok := graded[coderID]; !ok {
			continue
		}
		updated, err := c.repos.Results.MarkAttended(ctx, roundID, coderID)
		if err != nil {
			log.Warn().Err(err).
				Int64("round_id", roundID).
				Int64("coder_id", coderID).
				Msg("failed to flip attendance")
			continue
		}
		if updated {
			flipped++
		}
	}

	if flipped > 0 {
		log.Info().Int64("round_id", roundID).Int("flipped", flipped).Msg("attendance reconciled")
	}
}

// latestGradedByMember reduces the submission list to one entry per
// member, keeping the latest by created timestamp, then filters to
// submissions carrying a review summation.
func latestGradedByMember(submissions []topcoder.Submission) map[int64]topcoder.Submission {
	latest := make(map[int64]topcoder.Submission)
	for _, s := range submissions {
		if cur, ok := latest[s.MemberID]; !ok || s.Created.After(cur.Created) {
			latest[s.MemberID] = s
		}
	}

	graded := make(map[int64]topcoder.Submission, len(latest))
	for id, s := range latest {
		if s.Graded() {
			graded[id] = s
		}
	}
	return graded
}
