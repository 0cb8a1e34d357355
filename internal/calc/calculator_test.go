package calc

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topcoder-platform/marathon-rating-processor/internal/engine"
	"github.com/topcoder-platform/marathon-rating-processor/internal/persistence"
	"github.com/topcoder-platform/marathon-rating-processor/internal/topcoder"
)

// fakeStore implements all three repository interfaces in memory with
// the same upsert semantics as the postgres layer.
type fakeStore struct {
	roundsByContest map[int64]int64
	slates          map[int64][]engine.Participant
	absent          map[int64][]int64
	ratings         map[int64]*persistence.AlgoRating

	ratedCoders    map[int64]bool
	persistCalls   [][]engine.Participant
	markRatedCalls []int64
	attendedCoders []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roundsByContest: make(map[int64]int64),
		slates:          make(map[int64][]engine.Participant),
		absent:          make(map[int64][]int64),
		ratings:         make(map[int64]*persistence.AlgoRating),
		ratedCoders:     make(map[int64]bool),
	}
}

func (f *fakeStore) repos() *persistence.Repository {
	return &persistence.Repository{Rounds: f, Results: f, Ratings: f}
}

func (f *fakeStore) FindByContestID(ctx context.Context, contestID int64) (*persistence.Round, error) {
	roundID, ok := f.roundsByContest[contestID]
	if !ok {
		return nil, nil
	}
	return &persistence.Round{RoundID: roundID, ContestID: sql.NullInt64{Int64: contestID, Valid: true}}, nil
}

func (f *fakeStore) MarkRated(ctx context.Context, roundID int64) error {
	f.markRatedCalls = append(f.markRatedCalls, roundID)
	return nil
}

func (f *fakeStore) ListUnrated(ctx context.Context, roundID int64) ([]engine.Participant, error) {
	var out []engine.Participant
	for _, p := range f.slates[roundID] {
		if !f.ratedCoders[p.CoderID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAbsentCoders(ctx context.Context, roundID int64) ([]int64, error) {
	return f.absent[roundID], nil
}

func (f *fakeStore) MarkAttended(ctx context.Context, roundID, coderID int64) (bool, error) {
	f.attendedCoders = append(f.attendedCoders, coderID)
	return true, nil
}

func (f *fakeStore) Get(ctx context.Context, coderID int64) (*persistence.AlgoRating, error) {
	return f.ratings[coderID], nil
}

func (f *fakeStore) Persist(ctx context.Context, roundID int64, slate []engine.Participant) error {
	f.persistCalls = append(f.persistCalls, slate)
	for _, p := range slate {
		f.ratedCoders[p.CoderID] = true
		if prior, ok := f.ratings[p.CoderID]; ok {
			prior.Rating = p.NewRating
			prior.Vol = p.NewVolatility
			prior.NumRatings++
			prior.LastRatedRoundID = sql.NullInt64{Int64: roundID, Valid: true}
			if p.NewRating > prior.HighestRating {
				prior.HighestRating = p.NewRating
			}
			if p.NewRating < prior.LowestRating {
				prior.LowestRating = p.NewRating
			}
			continue
		}
		f.ratings[p.CoderID] = &persistence.AlgoRating{
			CoderID:           p.CoderID,
			AlgoRatingTypeID:  persistence.MarathonRatingTypeID,
			Rating:            p.NewRating,
			Vol:               p.NewVolatility,
			NumRatings:        1,
			HighestRating:     p.NewRating,
			LowestRating:      p.NewRating,
			FirstRatedRoundID: sql.NullInt64{Int64: roundID, Valid: true},
			LastRatedRoundID:  sql.NullInt64{Int64: roundID, Valid: true},
		}
	}
	return nil
}

type fakeSubmissions struct {
	submissions []topcoder.Submission
	err         error
}

func (f *fakeSubmissions) ListSubmissions(ctx context.Context, challengeID string) ([]topcoder.Submission, error) {
	return f.submissions, f.err
}

func seedSlate() []engine.Participant {
	return []engine.Participant{
		{CoderID: 1001, Rating: 1500, Volatility: 400, NumRatings: 5, Score: 95.50},
		{CoderID: 1002, Rating: 1350, Volatility: 450, NumRatings: 3, Score: 88.25},
		{CoderID: 1003, Score: 72.00},
		{CoderID: 1004, Score: 60.75},
		{CoderID: 1005, Score: 45.00},
	}
}

func TestCalculate_SeedRoundEndToEnd(t *testing.T) {
	store := newFakeStore()
	store.roundsByContest[30054321] = 10001
	store.slates[10001] = seedSlate()
	store.ratings[1001] = &persistence.AlgoRating{CoderID: 1001, AlgoRatingTypeID: 3, Rating: 1500, Vol: 400, NumRatings: 5, HighestRating: 1520, LowestRating: 1200}
	store.ratings[1002] = &persistence.AlgoRating{CoderID: 1002, AlgoRatingTypeID: 3, Rating: 1350, Vol: 450, NumRatings: 3, HighestRating: 1350, LowestRating: 1100}

	c := NewCalculator(store.repos(), &fakeSubmissions{})

	status, err := c.Calculate(context.Background(), "challenge-uuid", 30054321)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	// Provisional pass persisted first, first-timers only.
	require.Len(t, store.persistCalls, 2)
	var provIDs []int64
	for _, p := range store.persistCalls[0] {
		provIDs = append(provIDs, p.CoderID)
	}
	assert.ElementsMatch(t, []int64{1003, 1004, 1005}, provIDs)

	var expIDs []int64
	for _, p := range store.persistCalls[1] {
		expIDs = append(expIDs, p.CoderID)
	}
	assert.ElementsMatch(t, []int64{1001, 1002}, expIDs)

	// Every attending participant ends up with exactly one rating row.
	require.Len(t, store.ratings, 5)
	assert.Equal(t, 6, store.ratings[1001].NumRatings)
	assert.Equal(t, 4, store.ratings[1002].NumRatings)
	for _, id := range []int64{1003, 1004, 1005} {
		assert.Equal(t, 1, store.ratings[id].NumRatings, "coder %d", id)
		assert.Equal(t, engine.FirstVolatility, store.ratings[id].Vol, "coder %d", id)
	}

	assert.Equal(t, []int64{10001}, store.markRatedCalls)
}

func TestCalculate_AlreadyCalculated(t *testing.T) {
	store := newFakeStore()
	store.roundsByContest[555] = 10002
	// No unrated slate for the round.

	c := NewCalculator(store.repos(), nil)

	status, err := c.Calculate(context.Background(), "challenge-uuid", 555)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyCalculated, status)
	assert.Empty(t, store.persistCalls)
	assert.Empty(t, store.markRatedCalls)
}

func TestCalculate_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.roundsByContest[777] = 10003
	store.slates[10003] = seedSlate()
	store.ratings[1001] = &persistence.AlgoRating{CoderID: 1001, Rating: 1500, Vol: 400, NumRatings: 5}
	store.ratings[1002] = &persistence.AlgoRating{CoderID: 1002, Rating: 1350, Vol: 450, NumRatings: 3}

	c := NewCalculator(store.repos(), nil)

	status, err := c.Calculate(context.Background(), "challenge-uuid", 777)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	writes := len(store.persistCalls)

	status, err = c.Calculate(context.Background(), "challenge-uuid", 777)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyCalculated, status)
	assert.Len(t, store.persistCalls, writes, "no additional writes on replay")
	assert.Equal(t, 6, store.ratings[1001].NumRatings, "num_ratings unchanged on replay")
}

func TestCalculate_RoundResolutionFallback(t *testing.T) {
	store := newFakeStore()
	// No contest mapping: the legacy id doubles as the round id.
	store.slates[2042] = []engine.Participant{
		{CoderID: 1, Rating: 1100, Volatility: 300, NumRatings: 2, Score: 10},
		{CoderID: 2, Rating: 1250, Volatility: 280, NumRatings: 4, Score: 20},
	}
	store.ratings[1] = &persistence.AlgoRating{CoderID: 1, Rating: 1100, Vol: 300, NumRatings: 2}
	store.ratings[2] = &persistence.AlgoRating{CoderID: 2, Rating: 1250, Vol: 280, NumRatings: 4}

	c := NewCalculator(store.repos(), nil)

	status, err := c.Calculate(context.Background(), "challenge-uuid", 2042)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, []int64{2042}, store.markRatedCalls)
}

func TestCalculate_ReconcilerFailureDoesNotBlockRating(t *testing.T) {
	store := newFakeStore()
	store.roundsByContest[888] = 10004
	store.slates[10004] = seedSlate()
	store.absent[10004] = []int64{1006}
	store.ratings[1001] = &persistence.AlgoRating{CoderID: 1001, Rating: 1500, Vol: 400, NumRatings: 5}
	store.ratings[1002] = &persistence.AlgoRating{CoderID: 1002, Rating: 1350, Vol: 450, NumRatings: 3}

	subs := &fakeSubmissions{err: errors.New("submission service unreachable")}
	c := NewCalculator(store.repos(), subs)

	status, err := c.Calculate(context.Background(), "challenge-uuid", 888)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)
	assert.Empty(t, store.attendedCoders)
}

func TestCalculateRound_SingleParticipant(t *testing.T) {
	store := newFakeStore()
	store.slates[10005] = []engine.Participant{
		{CoderID: 42, Rating: 1777, Volatility: 333, NumRatings: 9, Score: 100},
	}
	store.ratings[42] = &persistence.AlgoRating{CoderID: 42, Rating: 1777, Vol: 333, NumRatings: 9}

	c := NewCalculator(store.repos(), nil)

	status, err := c.CalculateRound(context.Background(), 10005)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	// The snapshot is written back unchanged.
	assert.Equal(t, 1777, store.ratings[42].Rating)
	assert.Equal(t, 333, store.ratings[42].Vol)
	assert.Equal(t, 10, store.ratings[42].NumRatings)
	assert.Equal(t, []int64{10005}, store.markRatedCalls)
}

func TestReconcile_FlipsOnlyGradedLatestSubmissions(t *testing.T) {
	store := newFakeStore()
	store.absent[10006] = []int64{10, 11, 12}

	base := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	subs := &fakeSubmissions{submissions: []topcoder.Submission{
		// Coder 10: latest submission is graded.
		{MemberID: 10, Created: base, ReviewSummation: nil},
		{MemberID: 10, Created: base.Add(time.Hour), ReviewSummation: []topcoder.ReviewSummation{{AggregateScore: 91.2, IsFinal: true}}},
		// Coder 11: graded earlier, but the latest submission is not.
		{MemberID: 11, Created: base, ReviewSummation: []topcoder.ReviewSummation{{AggregateScore: 80, IsFinal: true}}},
		{MemberID: 11, Created: base.Add(2 * time.Hour), ReviewSummation: nil},
		// Coder 99 submitted but is not on the absent list.
		{MemberID: 99, Created: base, ReviewSummation: []topcoder.ReviewSummation{{AggregateScore: 70, IsFinal: true}}},
	}}

	c := NewCalculator(store.repos(), subs)
	c.Reconcile(context.Background(), 10006, "challenge-uuid")

	assert.Equal(t, []int64{10}, store.attendedCoders)
}

func TestReconcile_NoAbsentCodersSkipsFetch(t *testing.T) {
	store := newFakeStore()

	subs := &fakeSubmissions{err: errors.New("should not be called")}
	c := NewCalculator(store.repos(), subs)
	c.Reconcile(context.Background(), 10007, "challenge-uuid")

	assert.Empty(t, store.attendedCoders)
}
