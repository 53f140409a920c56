package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/rewards"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRewardRepo covers only what the scoring pipeline touches.
type fakeRewardRepo struct {
	calculations []db.RewardCalculation
	failWith     error
}

func (f *fakeRewardRepo) InsertCalculation(_ context.Context, calc *db.RewardCalculation) error {
	if f.failWith != nil {
		return f.failWith
	}
	calc.ID = int64(len(f.calculations) + 1)
	f.calculations = append(f.calculations, *calc)
	return nil
}

func (f *fakeRewardRepo) RecentFinalRewards(context.Context, int64, int) ([]float64, error) {
	return nil, nil
}

func (f *fakeRewardRepo) InsertLedgerEntry(context.Context, *db.RewardLedgerEntry) error {
	return nil
}

func (f *fakeRewardRepo) SumLedger(context.Context, int64, time.Time) (float64, error) {
	return 0, nil
}

func (f *fakeRewardRepo) Leaderboard(context.Context, time.Time, int) ([]db.LeaderboardEntry, error) {
	return nil, nil
}

func newScoringFixture(repo *fakeRewardRepo, pub *capturePublisher) *ScoringProcessor {
	logger := zap.NewNop()
	engine := rewards.NewEngine(repo, testConfig().Rewards, logger)
	return NewScoringProcessor(engine, pub, newTestCounters(), testConfig(), logger)
}

func marshalScoring(t *testing.T, req ScoringRequest) []byte {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func TestScoringProcessMessage_PublishesBreakdown(t *testing.T) {
	repo := &fakeRewardRepo{}
	pub := &capturePublisher{}
	p := newScoringFixture(repo, pub)

	now := time.Now().Unix()
	body := marshalScoring(t, ScoringRequest{
		RequestID: "score-1",
		DeviceID:  7,
		Metrics: []validator.Metric{
			{DataType: "temperature", Value: 25.5, Timestamp: now - 60, IsVerified: true},
			{DataType: "temperature", Value: 26.2, Timestamp: now - 60, IsVerified: true},
		},
		Performance: &rewards.PerformanceData{Uptime: f(0.98)},
	})

	require.NoError(t, p.ProcessMessage(context.Background(), body))
	require.Len(t, repo.calculations, 1)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "reward.calculated", pub.routingKeys[0])
	event := pub.events[0].(RewardCalculatedEvent)
	assert.Equal(t, "score-1", event.RequestID)
	assert.Equal(t, int64(7), event.DeviceID)
	assert.Equal(t, 2, event.MetricCount)
	assert.Equal(t, 200.0, event.BaseReward)
	assert.Equal(t, repo.calculations[0].FinalReward, event.FinalReward)
	assert.Equal(t, 1.3, event.Multipliers["uptime"])
}

func TestScoringProcessMessage_PersistenceErrorFailsMessage(t *testing.T) {
	repo := &fakeRewardRepo{failWith: errors.New("connection reset")}
	pub := &capturePublisher{}
	p := newScoringFixture(repo, pub)

	body := marshalScoring(t, ScoringRequest{RequestID: "score-2", DeviceID: 7})

	err := p.ProcessMessage(context.Background(), body)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, pub.events)
}

func TestScoringProcessMessage_PublishFailureDoesNotFailMessage(t *testing.T) {
	repo := &fakeRewardRepo{}
	pub := &capturePublisher{failWith: errors.New("channel closed")}
	p := newScoringFixture(repo, pub)

	body := marshalScoring(t, ScoringRequest{RequestID: "score-3", DeviceID: 7})

	require.NoError(t, p.ProcessMessage(context.Background(), body))
	require.Len(t, repo.calculations, 1)
}

func TestScoringProcessMessage_MalformedBody(t *testing.T) {
	p := newScoringFixture(&fakeRewardRepo{}, &capturePublisher{})

	err := p.ProcessMessage(context.Background(), []byte("{not json"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal scoring request")
}

func TestScoringProcessMessage_IncrementsCounter(t *testing.T) {
	repo := &fakeRewardRepo{}
	pub := &capturePublisher{}
	logger := zap.NewNop()
	engine := rewards.NewEngine(repo, testConfig().Rewards, logger)
	counters := newTestCounters()
	p := NewScoringProcessor(engine, pub, counters, testConfig(), logger)

	body := marshalScoring(t, ScoringRequest{RequestID: "score-4", DeviceID: 7})

	require.NoError(t, p.ProcessMessage(context.Background(), body))
	assert.Equal(t, 1.0, testutil.ToFloat64(counters.RewardsCalculated))
}
