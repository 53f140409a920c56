package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RewardConfig enumerates every threshold/factor pair used by the reward
// engine. All factors are explicit so a bad table fails at load time
// instead of producing silently wrong rewards.
type RewardConfig struct {
	// BaseRewardRate is the token amount granted per reported metric
	// before any multiplier is applied.
	BaseRewardRate float64 `yaml:"base_reward_rate"`

	Multipliers MultiplierConfig `yaml:"multipliers"`

	// Penalties maps a violation type to a fractional slash percentage.
	// Percentages are negative: a penalty computed against reward
	// history comes out negative, ready to be subtracted by the caller.
	Penalties map[string]float64 `yaml:"penalties"`

	MinReward float64 `yaml:"min_reward"`
	MaxReward float64 `yaml:"max_reward"`
}

// MultiplierConfig holds the four multiplier tables.
type MultiplierConfig struct {
	DataQuality  QualityMultipliers      `yaml:"data_quality"`
	Uptime       UptimeMultipliers       `yaml:"uptime"`
	Latency      LatencyMultipliers      `yaml:"latency"`
	Verification VerificationMultipliers `yaml:"verification"`
}

// QualityMultipliers maps quality-score tiers to factors.
// Tiers: >=0.8 excellent, >=0.6 good, >=0.4 average, else poor.
type QualityMultipliers struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	Average   float64 `yaml:"average"`
	Poor      float64 `yaml:"poor"`
}

// UptimeMultipliers maps uptime tiers to factors.
// Tiers: >=0.95 high, >=0.90 medium, else low.
type UptimeMultipliers struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
	Low    float64 `yaml:"low"`
}

// LatencyMultipliers maps latency tiers to factors.
// Tiers: <100ms low, <500ms medium, else high.
type LatencyMultipliers struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// VerificationMultipliers maps the caller-supplied verification ratio to
// factors. Tiers: >=0.8 verified, else unverified.
type VerificationMultipliers struct {
	Verified   float64 `yaml:"verified"`
	Unverified float64 `yaml:"unverified"`
}

// DefaultRewardConfig returns the built-in reward table.
func DefaultRewardConfig() *RewardConfig {
	return &RewardConfig{
		BaseRewardRate: 100,
		Multipliers: MultiplierConfig{
			DataQuality: QualityMultipliers{
				Excellent: 1.5,
				Good:      1.2,
				Average:   1.0,
				Poor:      0.7,
			},
			Uptime: UptimeMultipliers{
				High:   1.3,
				Medium: 1.1,
				Low:    0.8,
			},
			Latency: LatencyMultipliers{
				Low:    1.2,
				Medium: 1.0,
				High:   0.9,
			},
			Verification: VerificationMultipliers{
				Verified:   1.3,
				Unverified: 1.0,
			},
		},
		Penalties: map[string]float64{
			"offline":            -0.5,
			"data_inconsistency": -0.3,
			"latency_violation":  -0.2,
		},
		MinReward: 10,
		MaxReward: 10000,
	}
}

// LoadRewardConfig reads the reward table from a YAML file, falling back
// to the defaults when path is empty or the file does not exist.
// Fields absent from the file keep their default values.
func LoadRewardConfig(path string) (*RewardConfig, error) {
	cfg := DefaultRewardConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, nil
			}
			return nil, fmt.Errorf("failed to read reward config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse reward config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every threshold/factor pair.
func (c *RewardConfig) Validate() error {
	if c.BaseRewardRate <= 0 {
		return fmt.Errorf("base_reward_rate must be positive, got %v", c.BaseRewardRate)
	}
	if c.MinReward > c.MaxReward {
		return fmt.Errorf("min_reward %v exceeds max_reward %v", c.MinReward, c.MaxReward)
	}

	factors := map[string]float64{
		"data_quality.excellent":  c.Multipliers.DataQuality.Excellent,
		"data_quality.good":       c.Multipliers.DataQuality.Good,
		"data_quality.average":    c.Multipliers.DataQuality.Average,
		"data_quality.poor":       c.Multipliers.DataQuality.Poor,
		"uptime.high":             c.Multipliers.Uptime.High,
		"uptime.medium":           c.Multipliers.Uptime.Medium,
		"uptime.low":              c.Multipliers.Uptime.Low,
		"latency.low":             c.Multipliers.Latency.Low,
		"latency.medium":          c.Multipliers.Latency.Medium,
		"latency.high":            c.Multipliers.Latency.High,
		"verification.verified":   c.Multipliers.Verification.Verified,
		"verification.unverified": c.Multipliers.Verification.Unverified,
	}
	for name, factor := range factors {
		if factor <= 0 {
			return fmt.Errorf("multiplier %s must be positive, got %v", name, factor)
		}
	}

	for violation, pct := range c.Penalties {
		if pct > 0 || pct < -1 {
			return fmt.Errorf("penalty %s must be within [-1, 0], got %v", violation, pct)
		}
	}

	return nil
}
