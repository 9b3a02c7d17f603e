package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	yamlContent := `
group_prefix: /ndn/chat
node_id: /alice
cache_others: true
fetch:
  timeout: 2s
  retries: 5
transport:
  target: "repo:7443"
storage:
  write_policy: all
  backends:
    - name: mem
    - name: localfs
      config:
        localfs-dir: /var/lib/svs
security:
  validator:
    mode: trust
    trust_prefix: /ndn/chat
    anchors:
      - key_name: /alice/KEY/0011223344556677
        public_key: "ed25519:AAAA"
`
	cfg, err := Load(strings.NewReader(yamlContent))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/ndn/chat", cfg.GroupPrefix)
	assert.Equal(t, "/alice", cfg.NodeID)
	assert.True(t, cfg.CacheOthers)
	assert.Equal(t, 5, cfg.Fetch.Retries)
	assert.Equal(t, "repo:7443", cfg.Transport.Target)
	assert.Equal(t, "all", cfg.Storage.WritePolicy)
	require.Len(t, cfg.Storage.Backends, 2)
	assert.Equal(t, "/var/lib/svs", cfg.Storage.Backends[1].Config["localfs-dir"])
	require.Len(t, cfg.Security.Validator.Anchors, 1)
	assert.Equal(t, "ed25519:AAAA", cfg.Security.Validator.Anchors[0].PublicKey)

	// Defaults that were not overridden.
	assert.Equal(t, 4, cfg.Fetch.Parallelism)
	assert.Equal(t, "digest", cfg.Security.Signer.Type)
	assert.Equal(t, ":7443", cfg.Server.Listen)

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, ParseDuration(cfg.Fetch.Timeout, time.Minute, nil))
}

func TestLoad_EmptyReader(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "/svs", cfg.GroupPrefix)
	assert.Equal(t, "mem", cfg.Storage.Backends[0].Name)

	cfg, err = Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Fetch.Retries)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(strings.NewReader("fetch:\n  retries: [not an int\n"))
	assert.Error(t, err)
}

func TestLoadConfig_FileHandling(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/svs", cfg.GroupPrefix)

	path := filepath.Join(t.TempDir(), "svs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: /bob\n"), 0o600))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/bob", cfg.NodeID)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"root prefix":      func(c *Config) { c.GroupPrefix = "/" },
		"retries":          func(c *Config) { c.Fetch.Retries = -2 },
		"timeout":          func(c *Config) { c.Fetch.Timeout = "soon" },
		"no backends":      func(c *Config) { c.Storage.Backends = nil },
		"signer":           func(c *Config) { c.Security.Signer.Type = "rsa" },
		"trust no anchors": func(c *Config) { c.Security.Validator.Mode = "trust" },
		"validator":        func(c *Config) { c.Security.Validator.Mode = "maybe" },
		"tracing protocol": func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Protocol = "udp" },
		"same identity with cache others": func(c *Config) {
			c.CacheOthers = true
			c.Security.Validator = ValidatorConfig{
				Mode:         "trust",
				SameIdentity: true,
				Anchors:      []AnchorConfig{{KeyName: "/alice/KEY/00", PublicKey: "ed25519:AAAA"}},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseDuration(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Equal(t, 3*time.Second, ParseDuration("", 3*time.Second, logger))
	assert.Equal(t, 3*time.Second, ParseDuration("0", 3*time.Second, logger))
	assert.Equal(t, 250*time.Millisecond, ParseDuration("250ms", 3*time.Second, logger))
	assert.Equal(t, 3*time.Second, ParseDuration("bogus", 3*time.Second, logger))
	assert.Contains(t, buf.String(), "Invalid duration format")
}

func TestNewLogger(t *testing.T) {
	_, _, err := NewLogger(LoggingConfig{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
	_, _, err = NewLogger(LoggingConfig{Level: "info", Output: "printer"})
	assert.Error(t, err)
	_, _, err = NewLogger(LoggingConfig{Level: "info", Output: "file"})
	assert.Error(t, err)

	logger, closer, err := NewLogger(LoggingConfig{Level: "warn", Output: "none"})
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	path := filepath.Join(t.TempDir(), "svs.log")
	logger, closer, err = NewLogger(LoggingConfig{Level: "debug", Output: "file", File: path})
	require.NoError(t, err)
	require.NotNil(t, closer)
	logger.Debug("hello", "component", "test")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}
