// Package configuration defines pkginstall's on-disk configuration
// format: a YAML document optionally overlaid with PKGINSTALL_*
// environment variables via the reflect-based overlay in parser.go.
package configuration

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is pkginstall's top-level configuration, intended to be
// provided by a YAML file and optionally overridden by environment
// variables.
//
// Note that yaml field names should never include _ characters, since
// that is the separator used in environment variable names.
type Configuration struct {
	// Cache configures the content-addressed store root and its
	// optional shared metadata cache backend.
	Cache Cache `yaml:"cache"`

	// Restore, when false, allows ensurePackage to reuse cached
	// package metadata instead of always fetching. Defaults to true.
	Restore bool `yaml:"restore"`

	// Prefix is the install prefix (where node_modules is rooted).
	Prefix string `yaml:"prefix,omitempty"`

	// Global installs packages into a global prefix rather than a
	// project-local one.
	Global bool `yaml:"global,omitempty"`

	// Dev/Development/Production/Only/Also are the dev/prod dependency
	// filter inputs (spec §4.5.1).
	Dev         bool   `yaml:"dev,omitempty"`
	Development bool   `yaml:"development,omitempty"`
	Production  bool   `yaml:"production,omitempty"`
	Only        string `yaml:"only,omitempty"`
	Also        string `yaml:"also,omitempty"`

	// Force is recorded here (the CLI's --force sets it); no
	// collaborator in this module reads it. IgnoreScripts makes the
	// Orchestrator skip its ScriptRunner.
	Force         bool `yaml:"force,omitempty"`
	IgnoreScripts bool `yaml:"ignorescripts,omitempty"`

	// Concurrency overrides the dependency iterator's in-flight
	// visitor bound. Zero means use the default of 50.
	Concurrency int `yaml:"concurrency,omitempty"`

	// FetchRetries is how many times a non-optional dependency's
	// transient fetch failure is retried before it's treated as a
	// required-dependency failure. Zero means use the default of 2.
	FetchRetries int `yaml:"fetchretries,omitempty"`

	// Log configures the logging subsystem.
	Log Log `yaml:"log,omitempty"`
}

// Cache configures the content-addressed store.
type Cache struct {
	// Dir is the CAS root directory. Required.
	Dir string `yaml:"dir"`

	// Redis, when set, configures a shared keyed-metadata cache
	// backend so a second process can observe a prior cache hit.
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the optional shared metadata cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration `yaml:"dialtimeout,omitempty"`
}

// Log configures the logging subsystem.
type Log struct {
	// Level is the granularity at which operations are logged: error,
	// warn, info, or debug.
	Level string `yaml:"level,omitempty"`

	// Formatter overrides the default formatter. Options include
	// "text" and "json".
	Formatter string `yaml:"formatter,omitempty"`
}

const (
	defaultFetchRetries = 2
	defaultConcurrency  = 50
)

// Default returns a Configuration with every documented default
// applied, and Cache.Dir left empty since it is required input.
func Default() *Configuration {
	return &Configuration{
		Restore:      true,
		Concurrency:  defaultConcurrency,
		FetchRetries: defaultFetchRetries,
		Log:          Log{Level: "info"},
	}
}

// Load parses a YAML configuration document, applies documented
// defaults for anything left unset, and overlays any PKGINSTALL_*
// environment variables present in the process environment.
//
// Environment variables override configuration parameters following
// the scheme below: Configuration.Abc is replaced by the value of
// PKGINSTALL_ABC, Configuration.Abc.Xyz by PKGINSTALL_ABC_XYZ, and so
// on.
func Load(in []byte) (*Configuration, error) {
	c := Default()
	if len(in) > 0 {
		if err := yaml.Unmarshal(in, c); err != nil {
			return nil, fmt.Errorf("configuration: parsing yaml: %w", err)
		}
	}

	if err := overlayEnviron(c, "PKGINSTALL"); err != nil {
		return nil, fmt.Errorf("configuration: applying environment overrides: %w", err)
	}

	if c.Cache.Dir == "" {
		return nil, fmt.Errorf("configuration: cache.dir is required")
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.FetchRetries <= 0 {
		c.FetchRetries = defaultFetchRetries
	}

	return c, nil
}
