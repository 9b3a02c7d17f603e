// Package config loads the YAML configuration shared by the svs binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xdao.co/svs/storage/storeconfig"
)

// FetchConfig controls the fetch engine.
type FetchConfig struct {
	Timeout     string `yaml:"timeout"`
	Retries     int    `yaml:"retries"`
	Parallelism int    `yaml:"parallelism"`
}

// TransportConfig selects the upstream the node sends Interests to.
type TransportConfig struct {
	// Target is a gRPC host:port running the Face service. Empty means the
	// node only answers from its own store.
	Target      string `yaml:"target"`
	DialTimeout string `yaml:"dial_timeout"`
	MaxMsgBytes int    `yaml:"max_msg_bytes"`
}

// SignerConfig selects how published packets are signed.
type SignerConfig struct {
	// Type is "digest" or "ed25519".
	Type    string `yaml:"type"`
	SeedHex string `yaml:"seed_hex"`
	// KeyStore and KeyName load an ed25519 node key from a key store instead of SeedHex.
	KeyStore string `yaml:"key_store"`
	KeyName  string `yaml:"key_name"`
}

// AnchorConfig is one trusted key.
type AnchorConfig struct {
	KeyName   string `yaml:"key_name"`
	PublicKey string `yaml:"public_key"`
}

// ValidatorConfig selects how fetched packets are validated.
type ValidatorConfig struct {
	// Mode is "digest", "trust" or "accept-all".
	Mode        string         `yaml:"mode"`
	TrustPrefix string         `yaml:"trust_prefix"`
	Anchors     []AnchorConfig `yaml:"anchors"`
	// SameIdentity restricts each key to objects under its own node id.
	SameIdentity bool `yaml:"same_identity"`
}

type SecurityConfig struct {
	Signer    SignerConfig    `yaml:"signer"`
	Validator ValidatorConfig `yaml:"validator"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// TracingConfig holds OpenTelemetry tracing configurations.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// ServerConfig holds the repo daemon listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type Config struct {
	GroupPrefix string `yaml:"group_prefix"`
	NodeID      string `yaml:"node_id"`
	CacheOthers bool   `yaml:"cache_others"`

	Fetch     FetchConfig        `yaml:"fetch"`
	Transport TransportConfig    `yaml:"transport"`
	Storage   storeconfig.Config `yaml:"storage"`
	Security  SecurityConfig     `yaml:"security"`
	Logging   LoggingConfig      `yaml:"logging"`
	Tracing   TracingConfig      `yaml:"tracing"`
	Server    ServerConfig       `yaml:"server"`
}

// ParseDuration parses durationStr, falling back to defaultDuration (with a
// warning) when it is empty or invalid.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		GroupPrefix: "/svs",
		CacheOthers: false,
		Fetch: FetchConfig{
			Timeout:     "6s",
			Retries:     2,
			Parallelism: 4,
		},
		Transport: TransportConfig{
			DialTimeout: "5s",
		},
		Storage: storeconfig.Config{
			WritePolicy: "first",
			Backends:    []storeconfig.BackendConfig{{Name: "mem"}},
		},
		Security: SecurityConfig{
			Signer:    SignerConfig{Type: "digest"},
			Validator: ValidatorConfig{Mode: "digest"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "svs.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Server: ServerConfig{
			Listen: ":7443",
		},
	}
}

// Load reads YAML from r over the defaults. A nil or empty reader yields the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	if r == nil {
		return cfg, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads path; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Cache-others names carry no node id, so no key could ever match its own
// identity under them.
var errSameIdentityCacheOthers = errors.New("security.validator.same_identity cannot be used with cache_others: shared names carry no node id")

// Validate rejects values no component could run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GroupPrefix) == "" || strings.TrimSpace(c.GroupPrefix) == "/" {
		errs = append(errs, errors.New("group_prefix must name at least one component"))
	}
	if c.Fetch.Retries < -1 {
		errs = append(errs, fmt.Errorf("fetch.retries must be >= -1, got %d", c.Fetch.Retries))
	}
	if c.Fetch.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("fetch.parallelism must be >= 0, got %d", c.Fetch.Parallelism))
	}
	for field, v := range map[string]string{"fetch.timeout": c.Fetch.Timeout, "transport.dial_timeout": c.Transport.DialTimeout} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", field, v))
		}
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Security.Signer.Type) {
	case "", "digest", "ed25519":
	default:
		errs = append(errs, fmt.Errorf("security.signer.type: unsupported %q", c.Security.Signer.Type))
	}
	switch strings.ToLower(c.Security.Validator.Mode) {
	case "", "digest", "accept-all":
	case "trust":
		if len(c.Security.Validator.Anchors) == 0 {
			errs = append(errs, errors.New("security.validator: trust mode needs at least one anchor"))
		}
		if c.Security.Validator.SameIdentity && c.CacheOthers {
			errs = append(errs, errSameIdentityCacheOthers)
		}
	default:
		errs = append(errs, fmt.Errorf("security.validator.mode: unsupported %q", c.Security.Validator.Mode))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "grpc", "http":
	default:
		if c.Tracing.Enabled {
			errs = append(errs, fmt.Errorf("tracing.protocol: unsupported %q", c.Tracing.Protocol))
		}
	}
	return errors.Join(errs...)
}
