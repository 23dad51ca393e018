package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"stylematch/internal/css"
)

// ErrInvalid wraps validation failures of a loaded configuration.
var ErrInvalid = errors.New("invalid configuration")

type (
	// CacheConfig sizes the cascade cache
	CacheConfig struct {
		// Capacity is the number of cascades kept, one per distinct set of
		// @media/@supports results
		Capacity int `yaml:"capacity" validate:"min=1,max=64"`
		// MaxRules limits the rule selectors of one cascade, 0 = unlimited
		MaxRules int `yaml:"max_rules" validate:"gte=0"`
	}

	// DocumentStateConfig sets the document-wide states
	DocumentStateConfig struct {
		RTLLocale      bool `yaml:"rtl_locale"`
		WindowInactive bool `yaml:"window_inactive"`
	}

	// Config holds configuration options for matching and cascade building
	Config struct {
		// QuirksMode makes ids and classes case-insensitive and gates
		// :hover/:active
		QuirksMode bool `yaml:"quirks_mode"`

		// DocumentIsHTML makes tag and some attribute matching
		// case-insensitive for HTML elements
		DocumentIsHTML bool `yaml:"document_is_html"`

		Cache         CacheConfig         `yaml:"cache"`
		Features      css.Features        `yaml:"features"`
		DocumentState DocumentStateConfig `yaml:"document_state"`
		Logging       LoggingConfig       `yaml:"logging"`
	}
)

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		QuirksMode:     false,
		DocumentIsHTML: true,
		Cache: CacheConfig{
			Capacity: 4,
			MaxRules: 0, // unlimited
		},
		Features: css.DefaultFeatures(),
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: "normal"},
		},
	}
}

// DocumentStates converts the configured document states to state bits.
func (c *Config) DocumentStates() css.DocumentState {
	var s css.DocumentState
	if c.DocumentState.RTLLocale {
		s |= css.DocumentStateRTLLocale
	}
	if c.DocumentState.WindowInactive {
		s |= css.DocumentStateWindowInactive
	}
	return s
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func unmarshalConfig(data []byte, cfg *Config) error {
	// only fields we defined are accepted, so yaml.Unmarshal cannot be used
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return cfg.Validate()
}

// Parse superimposes YAML data on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return &cfg, nil
	}
	if err := unmarshalConfig(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the configuration from the file at the given path. An empty
// path returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Dump serialises the configuration back to YAML
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
