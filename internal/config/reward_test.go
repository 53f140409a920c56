package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRewardConfig_IsValid(t *testing.T) {
	cfg := DefaultRewardConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100.0, cfg.BaseRewardRate)
	assert.Equal(t, 1.5, cfg.Multipliers.DataQuality.Excellent)
	assert.Equal(t, -0.5, cfg.Penalties["offline"])
	assert.Equal(t, 10.0, cfg.MinReward)
	assert.Equal(t, 10000.0, cfg.MaxReward)
}

func TestLoadRewardConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadRewardConfig("")

	require.NoError(t, err)
	assert.Equal(t, DefaultRewardConfig(), cfg)
}

func TestLoadRewardConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadRewardConfig(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, DefaultRewardConfig(), cfg)
}

func TestLoadRewardConfig_OverlaysYAMLOntoDefaults(t *testing.T) {
	path := writeRewardFile(t, `
base_reward_rate: 250
multipliers:
  uptime:
    high: 1.4
penalties:
  offline: -0.6
`)

	cfg, err := LoadRewardConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.BaseRewardRate)
	assert.Equal(t, 1.4, cfg.Multipliers.Uptime.High)
	// Untouched fields keep their defaults.
	assert.Equal(t, 1.1, cfg.Multipliers.Uptime.Medium)
	assert.Equal(t, 1.5, cfg.Multipliers.DataQuality.Excellent)
	assert.Equal(t, -0.6, cfg.Penalties["offline"])
}

func TestLoadRewardConfig_RejectsMalformedYAML(t *testing.T) {
	path := writeRewardFile(t, "base_reward_rate: [not a number")

	_, err := LoadRewardConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse reward config")
}

func TestRewardConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RewardConfig)
		wantErr string
	}{
		{
			name:    "nonpositive base rate",
			mutate:  func(c *RewardConfig) { c.BaseRewardRate = 0 },
			wantErr: "base_reward_rate must be positive",
		},
		{
			name:    "min above max",
			mutate:  func(c *RewardConfig) { c.MinReward = 500; c.MaxReward = 100 },
			wantErr: "min_reward 500 exceeds max_reward 100",
		},
		{
			name:    "nonpositive multiplier",
			mutate:  func(c *RewardConfig) { c.Multipliers.Latency.Medium = 0 },
			wantErr: "multiplier latency.medium must be positive",
		},
		{
			name:    "negative multiplier",
			mutate:  func(c *RewardConfig) { c.Multipliers.DataQuality.Poor = -0.7 },
			wantErr: "multiplier data_quality.poor must be positive",
		},
		{
			name:    "positive penalty",
			mutate:  func(c *RewardConfig) { c.Penalties["offline"] = 0.5 },
			wantErr: "penalty offline must be within [-1, 0]",
		},
		{
			name:    "penalty below -1",
			mutate:  func(c *RewardConfig) { c.Penalties["offline"] = -1.5 },
			wantErr: "penalty offline must be within [-1, 0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRewardConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeRewardFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}
