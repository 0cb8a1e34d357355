// Package processor classifies inbound bus messages and dispatches them
// to the round orchestrator.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/topcoder-platform/marathon-rating-processor/internal/calc"
	"github.com/topcoder-platform/marathon-rating-processor/internal/metrics"
	"github.com/topcoder-platform/marathon-rating-processor/internal/stream"
	"github.com/topcoder-platform/marathon-rating-processor/internal/topcoder"
)

const (
	reviewPhase       = "review"
	endState          = "end"
	marathonSubTrack  = "marathon_match"
	serviceOriginator = "rating.calculation.service"

	eventRatingsCalculation = "RATINGS_CALCULATION"
	eventLoadCoders         = "LOAD_CODERS"
	statusSuccess           = "SUCCESS"
)

// Orchestrator is the slice of the calculator the router invokes.
type Orchestrator interface {
	Calculate(ctx context.Context, challengeID string, legacyID int64) (calc.Status, error)
	LoadCoders(ctx context.Context, roundID int64) error
	LoadRatings(ctx context.Context, roundID int64) error
}

// ChallengeFetcher resolves challenge details from a legacy project id.
type ChallengeFetcher interface {
	ChallengeByLegacyID(ctx context.Context, legacyID int64) (*topcoder.Challenge, error)
}

// Router maps topics and payload shapes to orchestrator actions.
type Router struct {
	autopilotTopic string
	ratingTopic    string
	challenges     ChallengeFetcher
	orch           Orchestrator
}

// NewRouter creates a router bound to the two consumed topics.
func NewRouter(autopilotTopic, ratingTopic string, challenges ChallengeFetcher, orch Orchestrator) *Router {
	return &Router{
		autopilotTopic: autopilotTopic,
		ratingTopic:    ratingTopic,
		challenges:     challenges,
		orch:           orch,
	}
}

// autopilotEvent is a phase notification from the autopilot service.
type autopilotEvent struct {
	PhaseTypeName string `json:"phaseTypeName"`
	State         string `json:"state"`
	ProjectID     int64  `json:"projectId"`
}

// ratingServiceEvent is an internal rating-service lifecycle event.
type ratingServiceEvent struct {
	Originator string `json:"originator"`
	Event      string `json:"event"`
	Status     string `json:"status"`
	RoundID    int64  `json:"roundId"`
}

// Dispatch is the harness entry point: it attaches a correlation id,
// records metrics, and contains panics so a programming error is fatal
// for the current message only.
func (r *Router) Dispatch(ctx context.Context, msg *stream.Message) (err error) {
	metrics.MessagesConsumed.WithLabelValues(msg.Topic).Inc()

	logger := log.With().
		Str("correlation_id", uuid.NewString()).
		Str("topic", msg.Topic).
		Int64("offset", msg.Offset).
		Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if p := recover(); p != nil {
			metrics.MessagesDropped.WithLabelValues(msg.Topic, "panic").Inc()
			err = fmt.Errorf("panic while handling message: %v", p)
		}
	}()

	return r.Handle(ctx, msg)
}

// Handle routes one decoded message. Malformed payloads and unknown
// topics are logged and dropped without error: they cannot succeed on
// replay, and the offset must advance.
func (r *Router) Handle(ctx context.Context, msg *stream.Message) error {
	logger := log.Ctx(ctx)

	switch msg.Topic {
	case r.autopilotTopic:
		var event autopilotEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn().Err(err).Msg("malformed autopilot payload, dropping")
			metrics.MessagesDropped.WithLabelValues(msg.Topic, "malformed").Inc()
			return nil
		}
		return r.handleAutopilot(ctx, event)

	case r.ratingTopic:
		var event ratingServiceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn().Err(err).Msg("malformed rating-service payload, dropping")
			metrics.MessagesDropped.WithLabelValues(msg.Topic, "malformed").Inc()
			return nil
		}
		return r.handleRatingService(ctx, event)

	default:
		logger.Warn().Msg("unrecognised topic, dropping")
		metrics.MessagesDropped.WithLabelValues(msg.Topic, "unknown_topic").Inc()
		return nil
	}
}

func (r *Router) handleAutopilot(ctx context.Context, event autopilotEvent) error {
	logger := log.Ctx(ctx)

	if !strings.EqualFold(event.PhaseTypeName, reviewPhase) || !strings.EqualFold(event.State, endState) {
		logger.Debug().
			Str("phase", event.PhaseTypeName).
			Str("state", event.State).
			Msg("not a review-end notification, ignoring")
		return nil
	}

	if event.ProjectID == 0 {
		logger.Warn().Msg("review-end notification without projectId, dropping")
		return nil
	}

	// The challenge lookup is a fatal input: without subTrack and the
	// V5 challenge id the round cannot be rated.
	challenge, err := r.challenges.ChallengeByLegacyID(ctx, event.ProjectID)
	if err != nil {
		return fmt.Errorf("cannot resolve challenge for project %d: %w", event.ProjectID, err)
	}

	if !strings.EqualFold(challenge.Legacy.SubTrack, marathonSubTrack) {
		logger.Debug().
			Str("sub_track", challenge.Legacy.SubTrack).
			Int64("legacy_id", challenge.LegacyID).
			Msg("not a marathon match, ignoring")
		return nil
	}

	status, err := r.orch.Calculate(ctx, challenge.ID, challenge.LegacyID)
	if err != nil {
		return fmt.Errorf("round calculation for legacy id %d failed: %w", challenge.LegacyID, err)
	}

	logger.Info().
		Int64("legacy_id", challenge.LegacyID).
		Str("status", string(status)).
		Msg("round calculation finished")
	return nil
}

func (r *Router) handleRatingService(ctx context.Context, event ratingServiceEvent) error {
	logger := log.Ctx(ctx)

	if event.Originator != serviceOriginator {
		logger.Debug().Str("originator", event.Originator).Msg("foreign originator, ignoring")
		return nil
	}

	if event.RoundID == 0 {
		logger.Warn().Str("event", event.Event).Msg("rating-service event without roundId, dropping")
		return nil
	}

	switch {
	case event.Event == eventRatingsCalculation && event.Status == statusSuccess:
		return r.orch.LoadCoders(ctx, event.RoundID)
	case event.Event == eventLoadCoders && event.Status == statusSuccess:
		return r.orch.LoadRatings(ctx, event.RoundID)
	default:
		logger.Debug().
			Str("event", event.Event).
			Str("status", event.Status).
			Msg("rating-service event requires no action")
		return nil
	}
}
