package topcoder

import (
	"context"
	"fmt"
	"time"
)

const submissionsPerPage = 500

// ReviewSummation is a final aggregated review of a submission.
type ReviewSummation struct {
	AggregateScore float64 `json:"aggregateScore"`
	IsFinal        bool    `json:"isFinal"`
}

// Submission is the subset of a V5 submission record the reconciler
// consumes. A submission counts as graded when it carries at least one
// review summation.
type Submission struct {
	ID              string            `json:"id"`
	MemberID        int64             `json:"memberId"`
	Created         time.Time         `json:"created"`
	ReviewSummation []ReviewSummation `json:"reviewSummation,omitempty"`
}

// Graded reports whether the submission carries a review summation.
func (s Submission) Graded() bool {
	return len(s.ReviewSummation) > 0
}

// ListSubmissions fetches every submission for a challenge, paging until
// the x-page header catches up with x-total-pages.
func (c *Client) ListSubmissions(ctx context.Context, challengeID string) ([]Submission, error) {
	var all []Submission

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/submissions?challengeId=%s&perPage=%d&page=%d",
			c.baseURL, challengeID, submissionsPerPage, page)

		var batch []Submission
		header, err := c.getJSON(ctx, url, &batch)
		if err != nil {
			return nil, fmt.Errorf("submission listing for challenge %s failed: %w", challengeID, err)
		}

		all = append(all, batch...)

		current := header.Get("x-page")
		total := header.Get("x-total-pages")
		if current == "" || total == "" || current == total || len(batch) == 0 {
			break
		}
	}

	return all, nil
}
