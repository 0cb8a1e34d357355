package topcoder

import (
	"context"
	"errors"
	"fmt"
)

// ErrChallengeNotFound means the legacy id maps to no V5 challenge.
var ErrChallengeNotFound = errors.New("challenge not found")

// Challenge is the subset of V5 challenge details the processor consumes.
type Challenge struct {
	ID       string `json:"id"`
	LegacyID int64  `json:"legacyId"`
	Legacy   struct {
		SubTrack string `json:"subTrack"`
	} `json:"legacy"`
}

// ChallengeByLegacyID fetches challenge details for a legacy project id.
func (c *Client) ChallengeByLegacyID(ctx context.Context, legacyID int64) (*Challenge, error) {
	url := fmt.Sprintf("%s/challenges?legacyId=%d", c.baseURL, legacyID)

	var challenges []Challenge
	if _, err := c.getJSON(ctx, url, &challenges); err != nil {
		return nil, fmt.Errorf("challenge lookup for legacy id %d failed: %w", legacyID, err)
	}

	if len(challenges) == 0 {
		return nil, fmt.Errorf("legacy id %d: %w", legacyID, ErrChallengeNotFound)
	}

	return &challenges[0], nil
}
