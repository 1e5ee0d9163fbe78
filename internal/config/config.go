package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ProfileConfig describes one personality the engine can be in.
// Profiles are data records: adding a personality means adding a record
// here plus keywords, not adding code.
type ProfileConfig struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Priority        int      `json:"priority"` // lower wins confidence ties
	Triggers        []string `json:"triggers"` // token-boundary cues
	Tone            []string `json:"tone"`     // directives for the generator
	StyleRules      []string `json:"style_rules"`
	Forbidden       []string `json:"forbidden"`       // phrasing the generator must avoid
	Hedges          []string `json:"hedges"`          // phrases stripped during refinement
	Acknowledgement []string `json:"acknowledgement"` // validating openers for refinement
	MaxRunes        int      `json:"max_runes"`       // 0 = no length ceiling
}

type PersonalityConfig struct {
	DefaultID       string          `json:"default_id"`
	SwitchThreshold float64         `json:"switch_threshold"`
	Profiles        []ProfileConfig `json:"profiles"`
}

type ExtractorConfig struct {
	Preference bool `json:"preference"`
	Fact       bool `json:"fact"`
	Emotion    bool `json:"emotion"`
}

type RecallConfig struct {
	Enabled      bool   `json:"enabled"`
	QdrantURL    string `json:"qdrant_url"`
	Collection   string `json:"collection"`
	APIKey       string `json:"api_key"`
	EmbeddingURL string `json:"embedding_url"`
	Limit        int    `json:"limit"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	LLM struct {
		URL            string `json:"url"`
		Model          string `json:"model"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		ContextSize    int    `json:"context_size"`
	} `json:"llm"`
	Personality PersonalityConfig `json:"personality"`
	Extractors  ExtractorConfig   `json:"extractors"`
	Recall      RecallConfig      `json:"recall"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton)
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		if c.Server.JWTSecret == "" {
			cfgErr = errors.New("jwtSecret must be set in config")
			return
		}
		ApplyDefaults(&c)
		if err := validate(&c); err != nil {
			cfgErr = err
			return
		}
		cfg = &c
	})
	return cfg, cfgErr
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ApplyDefaults fills in anything the config file left unset.
func ApplyDefaults(c *Config) {
	if len(c.Personality.Profiles) == 0 {
		c.Personality.Profiles = DefaultProfiles()
	}
	if c.Personality.DefaultID == "" {
		c.Personality.DefaultID = "calm"
	}
	if c.Personality.SwitchThreshold <= 0 {
		c.Personality.SwitchThreshold = 0.4
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 120
	}
	if c.LLM.ContextSize <= 0 {
		c.LLM.ContextSize = 2048
	}
	if c.Recall.Limit <= 0 {
		c.Recall.Limit = 5
	}
	// An empty extractors block means all three run; config can only
	// switch extractors off explicitly.
	if !c.Extractors.Preference && !c.Extractors.Fact && !c.Extractors.Emotion {
		c.Extractors = ExtractorConfig{Preference: true, Fact: true, Emotion: true}
	}
}

func validate(c *Config) error {
	ids := make(map[string]bool)
	for _, p := range c.Personality.Profiles {
		if p.ID == "" {
			return errors.New("personality profile with empty id")
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate personality profile id: %s", p.ID)
		}
		ids[p.ID] = true
	}
	if !ids[c.Personality.DefaultID] {
		return fmt.Errorf("default personality %q not among configured profiles", c.Personality.DefaultID)
	}
	return nil
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
