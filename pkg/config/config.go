// Package config loads the YAML task configuration of an arena run.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nstogner/arena/pkg/avalon"
	"github.com/nstogner/arena/pkg/gops"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Config is the full task configuration.
type Config struct {
	Task     string         `yaml:"task" validate:"required,oneof=avalon gops"`
	LogLevel string         `yaml:"log_level" validate:"omitempty,oneof=TRACE DEBUG INFO WARN ERROR"`
	Provider ProviderConfig `yaml:"provider"`
	Run      RunConfig      `yaml:"run"`
	Store    StoreConfig    `yaml:"store"`
	Avalon   AvalonConfig   `yaml:"avalon"`
	GOPS     GOPSConfig     `yaml:"gops"`
}

type ProviderConfig struct {
	Name  string `yaml:"name" validate:"required,oneof=gemini openai mock"`
	Model string `yaml:"model" validate:"required_unless=Name mock"`
	// BaseURL points the OpenAI provider at a compatible server.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
	// Backend names a local runtime container that serves the model. When
	// set, BaseURL is taken from the runtime.
	Backend          string `yaml:"backend" validate:"omitempty,alphanum"`
	MaxContextTokens int    `yaml:"max_context_tokens" validate:"gte=0"`
}

type RunConfig struct {
	Episodes    int   `yaml:"episodes" validate:"gte=1"`
	Parallelism int   `yaml:"parallelism" validate:"gte=1,lte=64"`
	Seed        int64 `yaml:"seed"`
}

type StoreConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type AvalonConfig struct {
	// PresetsFile is a JSON list of presets; when empty, Run.Episodes random
	// presets of NumPlayers seats are dealt.
	PresetsFile      string   `yaml:"presets_file"`
	NumPlayers       int      `yaml:"num_players" validate:"gte=5,lte=10"`
	Kinds            []string `yaml:"kinds" validate:"omitempty,dive,oneof=llm naive"`
	Discussion       bool     `yaml:"discussion"`
	Strategy         string   `yaml:"strategy" validate:"oneof=COT RELATION NONE"`
	ReflectEachQuest bool     `yaml:"reflect_each_quest"`
}

type GOPSConfig struct {
	NumCards int      `yaml:"num_cards" validate:"gte=1,lte=52"`
	Kinds    []string `yaml:"kinds" validate:"omitempty,len=2,dive,oneof=llm naive"`
}

// Default returns the configuration used for every unset field.
func Default() *Config {
	return &Config{
		Task:     "avalon",
		LogLevel: "INFO",
		Provider: ProviderConfig{Name: ProviderMock},
		Run:      RunConfig{Episodes: 1, Parallelism: 1},
		Store:    StoreConfig{Dir: "./arena-data"},
		Avalon:   AvalonConfig{NumPlayers: 5, Strategy: string(avalon.StrategyCOT), ReflectEachQuest: true},
		GOPS:     GOPSConfig{NumCards: 13},
	}
}

var validate = validator.New()

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads only defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case ProviderGemini:
			c.Provider.APIKey = os.Getenv("GEMINI_API_KEY")
		case ProviderOpenAI:
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && c.Provider.Name == ProviderOpenAI {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToUpper(v)
	}
	if v := os.Getenv("ARENA_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
}

// Validate checks struct constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Provider.Name == ProviderGemini && c.Provider.APIKey == "" {
		return fmt.Errorf("invalid config: gemini needs an API key (GEMINI_API_KEY)")
	}
	if n := len(c.Avalon.Kinds); n > 0 && c.Avalon.PresetsFile == "" && n != c.Avalon.NumPlayers {
		return fmt.Errorf("invalid config: avalon.kinds has %d entries for %d players", n, c.Avalon.NumPlayers)
	}
	return nil
}

// AvalonPresets returns one preset per episode.
func (c *Config) AvalonPresets() ([]avalon.Preset, error) {
	if c.Avalon.PresetsFile != "" {
		presets, err := avalon.LoadPresets(c.Avalon.PresetsFile)
		if err != nil {
			return nil, err
		}
		if len(presets) == 0 {
			return nil, fmt.Errorf("no presets in %s", c.Avalon.PresetsFile)
		}
		return presets, nil
	}
	presets := make([]avalon.Preset, c.Run.Episodes)
	for i := range presets {
		p, err := avalon.RandomPreset(c.Avalon.NumPlayers, c.Run.Seed+int64(i))
		if err != nil {
			return nil, err
		}
		presets[i] = p
	}
	return presets, nil
}

func (c *Config) AvalonKinds() []avalon.Kind {
	var kinds []avalon.Kind
	for _, k := range c.Avalon.Kinds {
		kinds = append(kinds, avalon.Kind(k))
	}
	return kinds
}

func (c *Config) AvalonStrategy() avalon.PromptStrategy {
	return avalon.PromptStrategy(c.Avalon.Strategy)
}

func (c *Config) GOPSKinds() [2]gops.Kind {
	var kinds [2]gops.Kind
	for i, k := range c.GOPS.Kinds {
		kinds[i] = gops.Kind(k)
	}
	return kinds
}
