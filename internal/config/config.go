package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TimingConfig is the pacing wire format. Durations are milliseconds.
type TimingConfig struct {
	MinIntervalBetweenPlays int  `yaml:"min_interval_between_plays"`
	PlayTimeout             int  `yaml:"play_timeout"`
	Enabled                 bool `yaml:"enabled"`
}

// MinInterval returns the pacing interval as a duration.
func (t TimingConfig) MinInterval() time.Duration {
	return time.Duration(t.MinIntervalBetweenPlays) * time.Millisecond
}

// Timeout returns the per-play timeout as a duration.
func (t TimingConfig) Timeout() time.Duration {
	return time.Duration(t.PlayTimeout) * time.Millisecond
}

// ScoringConfig holds score baseline and settlement parameters.
type ScoringConfig struct {
	InitialScore int `yaml:"initial_score"`
	// RankUnit scales the per-position settlement multipliers.
	RankUnit int `yaml:"rank_unit"`
	// DunBase is what each opponent pays for a seven-card dun.
	DunBase int `yaml:"dun_base"`
}

// TeamConfig enables partnership play.
type TeamConfig struct {
	Enabled bool    `yaml:"enabled"`
	Teams   [][]int `yaml:"teams"`
}

// TeamOf returns the team index of a seat, or the seat itself when teams are off.
func (t TeamConfig) TeamOf(seat int) int {
	if !t.Enabled {
		return seat
	}
	for i, members := range t.Teams {
		for _, m := range members {
			if m == seat {
				return i
			}
		}
	}
	return seat
}

// Members returns the seats on a team.
func (t TeamConfig) Members(team int) []int {
	if !t.Enabled || team < 0 || team >= len(t.Teams) {
		return []int{team}
	}
	return t.Teams[team]
}

// SchedulerConfig tunes the turn dispatcher.
type SchedulerConfig struct {
	CommitWaitTimeout time.Duration `yaml:"commit_wait_timeout"`
	DedupeWindow      time.Duration `yaml:"dedupe_window"`
}

// AnnouncementConfig controls the simulated voice playback for combinations.
type AnnouncementConfig struct {
	Enabled bool `yaml:"enabled"`
	// Durations maps combination type names to playback time.
	Durations       map[string]time.Duration `yaml:"durations"`
	DefaultDuration time.Duration            `yaml:"default_duration"`
}

// DurationFor returns the playback time for a combination type name.
func (a AnnouncementConfig) DurationFor(kind string) time.Duration {
	if d, ok := a.Durations[kind]; ok {
		return d
	}
	return a.DefaultDuration
}

// VoiceConfig holds credentials for voice channel tokens.
type VoiceConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	Domain string `yaml:"domain"`
}

// GameConfig is the full game configuration.
type GameConfig struct {
	Decks        int                `yaml:"decks"`
	HandSize     int                `yaml:"hand_size"`
	MinPlayers   int                `yaml:"min_players"`
	Timing       TimingConfig       `yaml:"timing"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	Team         TeamConfig         `yaml:"team"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Announcement AnnouncementConfig `yaml:"announcement"`
	Voice        VoiceConfig        `yaml:"voice"`
}

// Load reads configuration from a YAML file, expanding environment variables.
func Load(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over the defaults. Keys present in data win,
// including explicit zeros.
func Parse(data []byte) (*GameConfig, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the turn machinery cannot run with.
func (c *GameConfig) Validate() error {
	if c.Decks < 1 {
		return fmt.Errorf("decks must be at least 1, got %d", c.Decks)
	}
	if c.HandSize*4 > c.Decks*52 {
		return fmt.Errorf("hand_size %d too large for %d decks", c.HandSize, c.Decks)
	}
	if c.Timing.MinIntervalBetweenPlays < 0 || c.Timing.PlayTimeout < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	if c.Team.Enabled {
		seen := map[int]bool{}
		for _, members := range c.Team.Teams {
			for _, m := range members {
				if seen[m] {
					return fmt.Errorf("seat %d is on more than one team", m)
				}
				seen[m] = true
			}
		}
	}
	return nil
}

// defaults is the configuration before any file is applied.
func defaults() *GameConfig {
	return &GameConfig{
		Decks:      2,
		HandSize:   26,
		MinPlayers: 2,
		Timing: TimingConfig{
			MinIntervalBetweenPlays: 500,
			PlayTimeout:             30000,
			Enabled:                 true,
		},
		Scoring: ScoringConfig{
			InitialScore: -100,
			RankUnit:     15,
			DunBase:      30,
		},
		Scheduler: SchedulerConfig{
			CommitWaitTimeout: 15 * time.Second,
			DedupeWindow:      100 * time.Millisecond,
		},
		Announcement: AnnouncementConfig{
			DefaultDuration: 800 * time.Millisecond,
		},
	}
}

// applyDefaults fills values that depend on other settings.
func (c *GameConfig) applyDefaults() {
	if c.Team.Enabled && len(c.Team.Teams) == 0 {
		c.Team.Teams = [][]int{{0, 2}, {1, 3}}
	}
}

// DefaultConfig returns a configuration with all defaults.
func DefaultConfig() *GameConfig {
	cfg := defaults()
	cfg.Announcement.Enabled = true
	cfg.applyDefaults()
	return cfg
}
