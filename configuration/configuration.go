// Package configuration defines the server configuration schema and loads
// it from YAML with environment-variable overrides, following the shape of
// the teacher's configuration package (Version-stamped struct, reflective
// PREFIX_FIELD overlay).
package configuration

import (
	"fmt"
	"io"
	"reflect"
)

// Configuration is the root of the server's config file.
type Configuration struct {
	// Version is the confgiuration file's version; only "0.1" is accepted.
	Version Version `yaml:"version"`

	// Log configures the ambient logger.
	Log Log `yaml:"log"`

	// HTTP configures the listening socket.
	HTTP HTTP `yaml:"http"`

	// Auth holds the challenge, session and user-lock TTLs.
	Auth Auth `yaml:"auth"`

	// Repositories maps a repository name to its on-disk configuration.
	Repositories map[string]Repository `yaml:"repositories"`

	// Users maps a username to its credentials and repository grants.
	Users map[string]User `yaml:"users"`
}

// Log configures the structured logger.
type Log struct {
	Level     string `yaml:"level"`
	Formatter string `yaml:"formatter"`
}

// HTTP configures the listening address of the dispatcher.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Auth holds session lifetime parameters. Zero values fall back to the
// normative defaults in spec (30s challenge, 2h session, 30s user lock).
type Auth struct {
	ChallengeTTLSeconds int `yaml:"challenge_ttl_seconds"`
	SessionTTLSeconds   int `yaml:"session_ttl_seconds"`
	UserLockTTLSeconds  int `yaml:"user_lock_ttl_seconds"`
}

// Repository describes one named repository root.
type Repository struct {
	Path string `yaml:"path"`
}

// User describes one registered client identity.
type User struct {
	PublicKey        string   `yaml:"public_key"` // base64 Ed25519 public key
	UsesRepositories []string `yaml:"uses_repositories"`
}

// applyDefaults fills in zero-valued Auth fields with the spec's normative
// durations, an empty log level with "info" and an empty listen address
// with ":5050".
func (c *Configuration) applyDefaults() {
	if c.Auth.ChallengeTTLSeconds == 0 {
		c.Auth.ChallengeTTLSeconds = 30
	}
	if c.Auth.SessionTTLSeconds == 0 {
		c.Auth.SessionTTLSeconds = 2 * 60 * 60
	}
	if c.Auth.UserLockTTLSeconds == 0 {
		c.Auth.UserLockTTLSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":5050"
	}
}

// newParser is called on every Parse, so the VSYNCD_* overrides come from
// the environment as it is at parse time.
func newParser() *Parser {
	return NewParser("VSYNCD", []VersionedParseInfo{
		{
			Version: "0.1",
			ParseAs: reflect.TypeOf(Configuration{}),
			ConversionFunc: func(c interface{}) (interface{}, error) {
				return c, nil
			},
		},
	})
}

// Parse reads a Configuration from rd, applying VSYNCD_* environment
// overrides the way the teacher's parser.Parse does for its own schema.
func Parse(rd io.Reader) (*Configuration, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	var config Configuration
	if err := newParser().Parse(in, &config); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Configuration) validate() error {
	if c.Version != "0.1" {
		return fmt.Errorf("unsupported configuration version: %q", c.Version)
	}
	if len(c.Repositories) == 0 {
		return fmt.Errorf("configuration declares no repositories")
	}
	for name, repo := range c.Repositories {
		if repo.Path == "" {
			return fmt.Errorf("repository %q: empty path", name)
		}
	}
	for name, user := range c.Users {
		if user.PublicKey == "" {
			return fmt.Errorf("user %q: empty public_key", name)
		}
	}
	return nil
}
