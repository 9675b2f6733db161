// Package config loads the TOML configuration of the gsalogin tool.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/appuploader/grandslam/account"
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsa"
	log "github.com/sirupsen/logrus"
)

const (
	StorageFile = "file"
	StorageBolt = "bolt"
)

type GSA struct {
	Host    string
	Timeout string
	timeout time.Duration
}

type Anisette struct {
	URL     string
	Timeout string
	timeout time.Duration
}

type Dispatch struct {
	Timeout string
	timeout time.Duration
}

type Storage struct {
	// Kind is file or bolt.
	Kind string
	// Path is the snapshot directory for file and the database file for bolt.
	Path string
	// Password obfuscates file snapshots when set.
	Password string
}

type Logging struct {
	Level string
}

type Config struct {
	GSA      *GSA
	Anisette *Anisette
	Dispatch *Dispatch
	Storage  *Storage
	Logging  *Logging
}

func parseTimeout(section, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s.Timeout: %w", section, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s.Timeout must be positive, got %s", section, value)
	}
	return d, nil
}

func checkURL(section, value string) error {
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: %s is not an http(s) url: %q", section, value)
	}
	return nil
}

// FixupAndValidate applies defaults to missing sections and fields and validates the result.
func (c *Config) FixupAndValidate() error {
	if c.GSA == nil {
		c.GSA = &GSA{}
	}
	if c.Anisette == nil {
		c.Anisette = &Anisette{}
	}
	if c.Dispatch == nil {
		c.Dispatch = &Dispatch{}
	}
	if c.Storage == nil {
		c.Storage = &Storage{}
	}
	if c.Logging == nil {
		c.Logging = &Logging{}
	}

	var err error
	if c.GSA.Host == "" {
		c.GSA.Host = gsa.DefaultHost
	}
	if err = checkURL("GSA.Host", c.GSA.Host); err != nil {
		return err
	}
	if c.GSA.timeout, err = parseTimeout("GSA", c.GSA.Timeout, gsa.DefaultTimeout); err != nil {
		return err
	}
	if c.Anisette.URL == "" {
		c.Anisette.URL = anisette.DefaultURL
	}
	if err = checkURL("Anisette.URL", c.Anisette.URL); err != nil {
		return err
	}
	if c.Anisette.timeout, err = parseTimeout("Anisette", c.Anisette.Timeout, anisette.DefaultTimeout); err != nil {
		return err
	}
	if c.Dispatch.timeout, err = parseTimeout("Dispatch", c.Dispatch.Timeout, account.DefaultDispatchTimeout); err != nil {
		return err
	}

	switch c.Storage.Kind {
	case "":
		c.Storage.Kind = StorageFile
	case StorageFile, StorageBolt:
	default:
		return fmt.Errorf("config: Storage.Kind must be %q or %q, got %q", StorageFile, StorageBolt, c.Storage.Kind)
	}
	if c.Storage.Kind == StorageBolt && c.Storage.Path == "" {
		return errors.New("config: Storage.Path is required for bolt storage")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if _, err := log.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return fmt.Errorf("config: Logging.Level: %w", err)
	}
	return nil
}

// AccountOptions maps the network sections onto account options.
func (c *Config) AccountOptions() account.Options {
	return account.Options{
		GSAHost:         c.GSA.Host,
		GSATimeout:      c.GSA.timeout,
		AnisetteURL:     c.Anisette.URL,
		AnisetteTimeout: c.Anisette.timeout,
		DispatchTimeout: c.Dispatch.timeout,
	}
}

func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Default is the configuration used when no file is given.
func Default() *Config {
	cfg := new(Config)
	if err := cfg.FixupAndValidate(); err != nil {
		panic(err)
	}
	return cfg
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
