// Package config loads the settings a streamrepd process needs to start:
// where the remote log lives, how this process should reconnect to it, and
// where its local copy is kept. It follows the same JSON-plus-plaintext-
// secrets split as the rest of the stack: structural settings are ordinary
// JSON (parsed leniently), credentials live in a separate plainsecrets file
// that only decrypts under the right keyring.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/andreyvit/jsonfix"
	"github.com/andreyvit/plainsecrets"
	"github.com/andreyvit/streamrep/backoff"
	"github.com/andreyvit/streamrep/jsonext"
)

// Config holds everything needed to construct a SubscribableRemoteStream
// and point it at a local stream.
type Config struct {
	// RemoteURL is the base URL of the remote log, without a trailing
	// slash and without any query string.
	RemoteURL string `json:"remote_url"`

	// StartIndex is loaded and kept here, but streamrepd does not read it:
	// every subscription it makes starts at the local stream's own
	// NumberOfEntries.
	StartIndex uint64 `json:"start_index"`

	// Checked selects the server-side wire encoding (the &checked query
	// flag), independent of whether the client validates indices.
	Checked bool `json:"checked"`

	// LocalDBPath is where the bbolt-backed local stream is kept. An
	// empty value means an in-memory stream, useful for smoke-testing a
	// remote without committing to durability.
	LocalDBPath string `json:"local_db_path"`

	// AdminListenAddr is where the admin HTTP surface listens, e.g.
	// ":8091". Empty disables it.
	AdminListenAddr string `json:"admin_listen_addr"`

	// ReconnectBackoff overrides the default reconnection policy. Zero
	// value means backoff.GoodBackoff.
	ReconnectBackoff BackoffConfig `json:"reconnect_backoff"`

	// BearerTokenSecretName names the secret (from the secrets file) to
	// send as an Authorization: Bearer header, if the remote requires
	// authentication. Empty means no auth header.
	BearerTokenSecretName jsonext.StringNonZero `json:"bearer_token_secret_name"`
}

// BackoffConfig is the JSON-friendly shape of backoff.Backoff.
type BackoffConfig struct {
	ImmediateRetries  int             `json:"immediate_retries"`
	FixedDelayRetries int             `json:"fixed_delay_retries"`
	FixedDelay        jsonext.Duration `json:"fixed_delay"`
	BackoffRetries    int             `json:"backoff_retries"`
	MaxBackoffDelay   jsonext.Duration `json:"max_backoff_delay"`
}

// IsZero reports whether the config left every field at its default,
// which callers use to fall back to backoff.GoodBackoff.
func (b BackoffConfig) IsZero() bool {
	return b == BackoffConfig{}
}

// Backoff converts to the type the streamrep package actually consumes.
func (b BackoffConfig) Backoff() backoff.Backoff {
	if b.IsZero() {
		return backoff.GoodBackoff
	}
	return backoff.Backoff{
		ImmediateRetries:  b.ImmediateRetries,
		FixedDelayRetries: b.FixedDelayRetries,
		FixedDelay:        b.FixedDelay.Value(),
		BackoffRetries:    b.BackoffRetries,
		MaxBackoffDelay:   b.MaxBackoffDelay.Value(),
	}
}

// Secrets is the decrypted, per-environment secret set.
type Secrets map[string]string

// BearerToken returns the token named by cfg.BearerTokenSecretName, or ""
// if none was configured.
func (s Secrets) BearerToken(cfg *Config) string {
	if cfg.BearerTokenSecretName == "" {
		return ""
	}
	return s[string(cfg.BearerTokenSecretName)]
}

// Load reads configPath as lenient JSON into a Config. Unlike the
// multi-section, multi-environment settings loader this is modeled on,
// there is exactly one file and exactly one set of settings: this package
// backs a single-purpose replication daemon, not a multi-tenant app.
func Load(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jsonfix.Bytes(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", configPath, err)
	}
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("config: %s: remote_url is required", configPath)
	}
	return &cfg, nil
}

// LoadSecrets decrypts secretsPath using the keyring at keyringPath and
// returns the values active for env, following the same
// keyring-file-plus-plainsecrets-file split as the rest of the stack.
func LoadSecrets(secretsPath, keyringPath, env string) (Secrets, error) {
	keyring, err := plainsecrets.ParseKeyringFile(keyringPath)
	if err != nil {
		return nil, fmt.Errorf("config: keyring: %w", err)
	}
	raw, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("config: secrets: %w", err)
	}
	vals, err := plainsecrets.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("config: secrets: %s: %w", secretsPath, err)
	}
	m, err := vals.EnvValues(env, keyring)
	if err != nil {
		return nil, fmt.Errorf("config: secrets: %s: %w", secretsPath, err)
	}
	return Secrets(m), nil
}
