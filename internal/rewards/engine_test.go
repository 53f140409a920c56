package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/config"
	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeRewardRepo is an in-memory RewardRepository.
type fakeRewardRepo struct {
	calculations []db.RewardCalculation
	ledger       []db.RewardLedgerEntry
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

func (f *fakeRewardRepo) RecentFinalRewards(_ context.Context, deviceID int64, limit int) ([]float64, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []float64
	// newest first
	for i := len(f.calculations) - 1; i >= 0 && len(out) < limit; i-- {
		if f.calculations[i].DeviceID == deviceID {
			out = append(out, f.calculations[i].FinalReward)
		}
	}
	return out, nil
}

func (f *fakeRewardRepo) InsertLedgerEntry(_ context.Context, entry *db.RewardLedgerEntry) error {
	if f.failWith != nil {
		return f.failWith
	}
	entry.ID = int64(len(f.ledger) + 1)
	f.ledger = append(f.ledger, *entry)
	return nil
}

func (f *fakeRewardRepo) SumLedger(_ context.Context, deviceID int64, since time.Time) (float64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	total := 0.0
	for _, e := range f.ledger {
		if e.DeviceID == deviceID && !e.DistributedAt.Before(since) {
			total += e.Amount
		}
	}
	return total, nil
}

func (f *fakeRewardRepo) Leaderboard(_ context.Context, since time.Time, limit int) ([]db.LeaderboardEntry, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	totals := make(map[int64]*db.LeaderboardEntry)
	for _, e := range f.ledger {
		if e.DistributedAt.Before(since) {
			continue
		}
		entry, ok := totals[e.DeviceID]
		if !ok {
			entry = &db.LeaderboardEntry{DeviceID: e.DeviceID}
			totals[e.DeviceID] = entry
		}
		entry.TotalRewards += e.Amount
		entry.RewardCount++
	}

	var out []db.LeaderboardEntry
	for _, e := range totals {
		out = append(out, *e)
	}
	// total descending, device id ascending on ties
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].TotalRewards > out[i].TotalRewards ||
				(out[j].TotalRewards == out[i].TotalRewards && out[j].DeviceID < out[i].DeviceID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestEngine(repo *fakeRewardRepo) *Engine {
	e := NewEngine(repo, config.DefaultRewardConfig(), zap.NewNop())
	e.now = func() time.Time { return testNow }
	return e
}

func verifiedMetric(dataType string, value float64) validator.Metric {
	return validator.Metric{
		DataType:   dataType,
		Value:      value,
		Timestamp:  testNow.Unix() - 60,
		IsVerified: true,
	}
}

func f(v float64) *float64 { return &v }

func TestCalculateRewards_ReferenceScenario(t *testing.T) {
	repo := &fakeRewardRepo{}
	engine := newTestEngine(repo)

	metrics := []validator.Metric{
		verifiedMetric("temperature", 25.5),
		verifiedMetric("temperature", 26.2),
		verifiedMetric("humidity", 60.0),
		{DataType: "temperature", Value: 24.8, Timestamp: testNow.Unix() - 60},
	}
	perf := &PerformanceData{
		Uptime:        f(0.98),
		LatencyMS:     f(80),
		VerifiedRatio: f(0.75),
	}

	calc, err := engine.CalculateRewards(context.Background(), 1, metrics, perf)

	require.NoError(t, err)
	assert.Equal(t, 4, calc.MetricCount)
	assert.Equal(t, 400.0, calc.BaseReward)

	// verified 3/4, recency 1.0, consistency from the mixed-type
	// variance push the quality score over 0.8.
	assert.Equal(t, 1.5, calc.Multipliers["data_quality"])
	assert.Equal(t, 1.3, calc.Multipliers["uptime"])       // 0.98 >= 0.95
	assert.Equal(t, 1.2, calc.Multipliers["latency"])      // 80ms < 100ms
	assert.Equal(t, 1.0, calc.Multipliers["verification"]) // 0.75 < 0.8

	assert.InDelta(t, 936.0, calc.FinalReward, 1e-9)

	require.Len(t, repo.calculations, 1)
	assert.Equal(t, calc.FinalReward, repo.calculations[0].FinalReward)
}

func TestCalculateRewards_EmptyMetrics(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	calc, err := engine.CalculateRewards(context.Background(), 1, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, calc.MetricCount)
	assert.Equal(t, 0.0, calc.BaseReward)
	for _, m := range calc.Multipliers {
		assert.Equal(t, 1.0, m)
	}
	// Clamped up to the floor.
	assert.Equal(t, 10.0, calc.FinalReward)
}

func TestCalculateRewards_NoPerformanceData(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	calc, err := engine.CalculateRewards(context.Background(), 1, []validator.Metric{
		verifiedMetric("temperature", 25.0),
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1.0, calc.Multipliers["uptime"])
	assert.Equal(t, 1.0, calc.Multipliers["latency"])
	assert.Equal(t, 1.0, calc.Multipliers["verification"])
}

func TestCalculateRewards_PartialPerformanceFieldsDefault(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	calc, err := engine.CalculateRewards(context.Background(), 1, []validator.Metric{
		verifiedMetric("temperature", 25.0),
	}, &PerformanceData{Uptime: f(0.5)})

	require.NoError(t, err)
	assert.Equal(t, 0.8, calc.Multipliers["uptime"]) // low tier
	assert.Equal(t, 1.0, calc.Multipliers["latency"])
	assert.Equal(t, 1.0, calc.Multipliers["verification"])
}

func TestCalculateRewards_ClampedToMax(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	metrics := make([]validator.Metric, 200)
	for i := range metrics {
		metrics[i] = verifiedMetric("temperature", 25.0)
	}

	calc, err := engine.CalculateRewards(context.Background(), 1, metrics, &PerformanceData{
		Uptime:        f(1.0),
		LatencyMS:     f(10),
		VerifiedRatio: f(1.0),
	})

	require.NoError(t, err)
	assert.Equal(t, 10000.0, calc.FinalReward)
}

func TestCalculateRewards_MultipliersComposeMultiplicatively(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	calc, err := engine.CalculateRewards(context.Background(), 1, []validator.Metric{
		verifiedMetric("temperature", 25.0),
		verifiedMetric("temperature", 25.1),
	}, &PerformanceData{
		Uptime:        f(0.92), // medium 1.1
		LatencyMS:     f(200),  // medium 1.0
		VerifiedRatio: f(0.9),  // verified 1.3
	})

	require.NoError(t, err)
	expected := calc.BaseReward
	for _, m := range calc.Multipliers {
		expected *= m
	}
	assert.InDelta(t, expected, calc.FinalReward, 1e-9)
}

func TestCalculateRewards_SurfacesStorageError(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{failWith: errors.New("disk full")})

	_, err := engine.CalculateRewards(context.Background(), 1, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestApplyPenalty_NoHistoryUsesFallbackBase(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	amount, err := engine.ApplyPenalty(context.Background(), 1, "offline")

	require.NoError(t, err)
	assert.InDelta(t, 50.0, amount, 1e-9) // 100 * |-0.5|
}

func TestApplyPenalty_WithHistoryAveragesRecentRewards(t *testing.T) {
	repo := &fakeRewardRepo{}
	engine := newTestEngine(repo)

	for _, reward := range []float64{100, 200, 300} {
		repo.calculations = append(repo.calculations, db.RewardCalculation{
			DeviceID:    1,
			FinalReward: reward,
		})
	}

	amount, err := engine.ApplyPenalty(context.Background(), 1, "data_inconsistency")

	require.NoError(t, err)
	assert.InDelta(t, 200*-0.3, amount, 1e-9)
}

func TestApplyPenalty_UnknownViolation(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	amount, err := engine.ApplyPenalty(context.Background(), 1, "jaywalking")

	require.NoError(t, err)
	assert.Equal(t, 0.0, amount)
}

func TestDistributeRewards_AppendsLedgerEntry(t *testing.T) {
	repo := &fakeRewardRepo{}
	engine := newTestEngine(repo)

	ref := "0xabc123"
	entry, err := engine.DistributeRewards(context.Background(), 1, 500.0, "metrics", &ref)

	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Equal(t, 500.0, entry.Amount)
	require.NotNil(t, entry.TxRef)
	assert.Equal(t, "0xabc123", *entry.TxRef)
	require.Len(t, repo.ledger, 1)
}

func TestDistributeRewards_DefaultsRewardType(t *testing.T) {
	repo := &fakeRewardRepo{}
	engine := newTestEngine(repo)

	entry, err := engine.DistributeRewards(context.Background(), 1, 500.0, "", nil)

	require.NoError(t, err)
	assert.Equal(t, "metrics", entry.RewardType)
}

func TestTotalRewards_TrailingWindow(t *testing.T) {
	repo := &fakeRewardRepo{}
	engine := newTestEngine(repo)

	repo.ledger = []db.RewardLedgerEntry{
		{DeviceID: 1, Amount: 100, DistributedAt: testNow.Add(-2 * 24 * time.Hour)},
		{DeviceID: 1, Amount: 50, DistributedAt: testNow.Add(-40 * 24 * time.Hour)},
		{DeviceID: 2, Amount: 999, DistributedAt: testNow.Add(-1 * 24 * time.Hour)},
	}

	total, err := engine.TotalRewards(context.Background(), 1, 7)

	require.NoError(t, err)
	assert.Equal(t, 100.0, total)
}

func TestTotalRewards_EmptyWindowIsZero(t *testing.T) {
	engine := newTestEngine(&fakeRewardRepo{})

	total, err := engine.TotalRewards(context.Background(), 1, 30)

	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
}

func TestLeaderboard_OrderedAndTruncated(t *testing.T) {
	repo := &fakeRewardRepo{}
	engine := newTestEngine(repo)

	recent := testNow.Add(-24 * time.Hour)
	repo.ledger = []db.RewardLedgerEntry{
		{DeviceID: 1, Amount: 100, DistributedAt: recent},
		{DeviceID: 2, Amount: 300, DistributedAt: recent},
		{DeviceID: 3, Amount: 200, DistributedAt: recent},
		{DeviceID: 3, Amount: 150, DistributedAt: recent},
		{DeviceID: 4, Amount: 50, DistributedAt: recent},
		// Outside the 30 day window, must not count.
		{DeviceID: 5, Amount: 9999, DistributedAt: testNow.Add(-31 * 24 * time.Hour)},
	}

	entries, err := engine.Leaderboard(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].DeviceID)
	assert.Equal(t, 350.0, entries[0].TotalRewards)
	assert.Equal(t, int64(2), entries[0].RewardCount)
	assert.Equal(t, int64(2), entries[1].DeviceID)
	assert.Equal(t, int64(1), entries[2].DeviceID)

	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].TotalRewards, entries[i].TotalRewards)
	}
}
