// Package config loads the server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "THREADTALK_CONFIG"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Config is the server configuration.
type Config struct {
	Listen    string `yaml:"listen"`
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`

	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`

	// SignatureMaxAge bounds the age of a signed Date. Zero disables the
	// check.
	SignatureMaxAge time.Duration `yaml:"signature_max_age"`

	Resolver Resolver `yaml:"resolver"`
	Actors   []Actor  `yaml:"actors"`
}

// Resolver configures remote actor lookups.
type Resolver struct {
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	NegativeTTL  time.Duration `yaml:"negative_ttl"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// Actor declares a local actor. A missing key file is generated on start.
type Actor struct {
	Username       string `yaml:"username"`
	Name           string `yaml:"name"`
	Summary        string `yaml:"summary"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

// Default returns the configuration used for absent fields.
func Default() Config {
	return Config{
		Listen:          ":8080",
		BaseURL:         "http://localhost:8080",
		UserAgent:       "threadtalk/1.0",
		MaxBodyBytes:    1 << 20,
		RequestTimeout:  30 * time.Second,
		DeliveryTimeout: 10 * time.Second,
		SignatureMaxAge: 12 * time.Hour,
		Resolver: Resolver{
			CacheSize:    1024,
			CacheTTL:     time.Hour,
			NegativeTTL:  5 * time.Minute,
			FetchTimeout: 10 * time.Second,
		},
	}
}

// Load reads the YAML file at path over Default and validates the result.
// Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports every problem with c.
func (c Config) Validate() error {
	var errs []error

	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Listen == "" {
		invalid("listen is empty")
	}

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid("base_url %q is not an absolute http(s) url", c.BaseURL)
	}

	if c.MaxBodyBytes <= 0 {
		invalid("max_body_bytes must be positive")
	}

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"request_timeout", c.RequestTimeout},
		{"delivery_timeout", c.DeliveryTimeout},
		{"resolver.cache_ttl", c.Resolver.CacheTTL},
		{"resolver.negative_ttl", c.Resolver.NegativeTTL},
		{"resolver.fetch_timeout", c.Resolver.FetchTimeout},
	}

	for _, p := range positive {
		if p.d <= 0 {
			invalid("%s must be positive", p.name)
		}
	}

	if c.SignatureMaxAge < 0 {
		invalid("signature_max_age must not be negative")
	}

	if c.Resolver.CacheSize <= 0 {
		invalid("resolver.cache_size must be positive")
	}

	seen := make(map[string]bool, len(c.Actors))
	for i, a := range c.Actors {
		switch {
		case !usernamePattern.MatchString(a.Username):
			invalid("actors[%d]: username %q must be letters, digits or underscores", i, a.Username)
		case seen[a.Username]:
			invalid("actors[%d]: duplicate username %q", i, a.Username)
		}

		seen[a.Username] = true

		if a.PrivateKeyFile == "" {
			invalid("actors[%d]: private_key_file is empty", i)
		}
	}

	return errors.Join(errs...)
}
