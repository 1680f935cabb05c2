// Package config loads the core's runtime configuration from TOML, in the
// teacher's nested-struct-per-concern shape (internal/daemon's Config/
// DefaultConfig/parseStorageSize convention — internal/daemon/config_test.go
// documents the shape even where the corresponding config.go was not part of
// the retrieved pack).
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration tree.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Session   SessionConfig   `toml:"session"`
	Placement PlacementConfig `toml:"placement"`
	Profiles  ProfilesConfig  `toml:"profiles"`
}

// ServerConfig configures the optional HTTP surface (§6.7).
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsPath string `toml:"metrics_path"`
}

// SessionConfig configures C7/C8 session generation (§6.6).
type SessionConfig struct {
	Size                int `toml:"size"`
	AlmostDueWindowDays int `toml:"almost_due_window_days"`
}

// PlacementConfig configures initial placement sampling (§4.6).
type PlacementConfig struct {
	PartialThreshold          float64 `toml:"partial_threshold"`
	VerseKnownEnergy          float64 `toml:"verse_known_energy"`
	VersePartialEnergy        float64 `toml:"verse_partial_energy"`
	VocabKnownEnergy          float64 `toml:"vocab_known_energy"`
	VocabBaseDifficulty       float64 `toml:"vocab_base_difficulty"`
	FluencyDifficultyReduction float64 `toml:"fluency_difficulty_reduction"`
	MaxVerseStabilityDays     float64 `toml:"max_verse_stability_days"`
	MaxVocabStabilityDays     float64 `toml:"max_vocab_stability_days"`
}

// ProfilesConfig names the profile a session uses when the bandit (C9) is
// disabled or has no arms yet.
type ProfilesConfig struct {
	Default string `toml:"default"`
}

// DefaultConfig returns the built-in defaults, which double as the values
// any key a TOML file omits falls back to (§6.6 "Overrides").
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			MetricsPath: "/metrics",
		},
		Session: SessionConfig{
			Size:                20,
			AlmostDueWindowDays: 3,
		},
		Placement: PlacementConfig{
			PartialThreshold:           0.3,
			VerseKnownEnergy:           0.7,
			VersePartialEnergy:         0.35,
			VocabKnownEnergy:           0.6,
			VocabBaseDifficulty:        4.0,
			FluencyDifficultyReduction: 0.3,
			MaxVerseStabilityDays:      180,
			MaxVocabStabilityDays:      90,
		},
		Profiles: ProfilesConfig{Default: "Balanced"},
	}
}

// Load reads path on top of DefaultConfig — any key the file omits keeps its
// default, rather than zeroing out. An empty path returns the defaults
// untouched.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
