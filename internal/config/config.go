// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tabsession.
//
// Configuration file location:
//   - ~/.tabsession/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/tabsession/internal/util"
)

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as "2h", "5m", "1s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tabsession configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Session SessionConfig `toml:"session"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig locates the auth backend.
type APIConfig struct {
	// BaseURL is the backend serving /auth/*.
	BaseURL string `toml:"base_url"`

	// Timeout bounds each request.
	Timeout Duration `toml:"timeout"`

	// LoginURL is where expired sessions are sent; ?reason= is appended.
	LoginURL string `toml:"login_url"`
}

// SessionConfig holds the inactivity and refresh timings.
type SessionConfig struct {
	InactivityTimeout  Duration `toml:"inactivity_timeout"`
	RememberMeTimeout  Duration `toml:"remember_me_timeout"`
	WarningLead        Duration `toml:"warning_lead"`
	TickInterval       Duration `toml:"tick_interval"`
	ValidityInterval   Duration `toml:"validity_interval"`
	RefreshSkew        Duration `toml:"refresh_skew"`
	RefreshMinInterval Duration `toml:"refresh_min_interval"`

	// CheckFingerprint enables the soft device check on startup.
	CheckFingerprint bool `toml:"check_fingerprint"`
}

// StorageConfig selects the shared credential store.
type StorageConfig struct {
	// Backend is one of sqlite, redis, memory.
	Backend string `toml:"backend"`

	// Origin names the key space tabs share, like a browser origin.
	Origin string `toml:"origin"`

	// Dir holds the sqlite database and preference file. Defaults to
	// ~/.tabsession/origins/<origin>.
	Dir string `toml:"dir"`

	RedisURL     string   `toml:"redis_url"`
	PollInterval Duration `toml:"poll_interval"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "http://localhost:8000",
			Timeout:  Duration(15 * time.Second),
			LoginURL: "http://localhost:3000/login",
		},
		Session: SessionConfig{
			InactivityTimeout:  Duration(2 * time.Hour),
			RememberMeTimeout:  Duration(24 * time.Hour),
			WarningLead:        Duration(5 * time.Minute),
			TickInterval:       Duration(time.Second),
			ValidityInterval:   Duration(5 * time.Minute),
			RefreshSkew:        Duration(time.Minute),
			RefreshMinInterval: Duration(10 * time.Second),
			CheckFingerprint:   true,
		},
		Storage: StorageConfig{
			Backend:      "sqlite",
			Origin:       "default",
			PollInterval: Duration(500 * time.Millisecond),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the tabsession configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tabsession"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// OriginDir returns the directory holding one origin's shared state.
func (c *Config) OriginDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "origins", sanitizeOrigin(c.Storage.Origin)), nil
}

// PreferencePath returns the remember-me preference file of the origin.
func (c *Config) PreferencePath() (string, error) {
	dir, err := c.OriginDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "preferences.toml"), nil
}

// sanitizeOrigin makes an origin such as "https://app.example.com:8443" safe
// to use as a directory name.
func sanitizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range origin {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ensureSecurePermissions checks and fixes permissions on config files.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.tabsession/config.toml if it exists, then applies
// environment overrides, defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPathTOML()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes path over cfg. Keys missing from the file keep the
// values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# tabsession configuration file\n")
	buf.WriteString("# Generated by tabsession - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if err := validateHTTPURL(c.API.BaseURL); err != nil {
		add("api.base_url", "%v", err)
	}
	if c.API.LoginURL != "" {
		if err := validateHTTPURL(c.API.LoginURL); err != nil {
			add("api.login_url", "%v", err)
		}
	}
	if c.API.Timeout <= 0 {
		add("api.timeout", "must be positive")
	}

	// Session
	s := c.Session
	for _, f := range []struct {
		name string
		v    Duration
	}{
		{"session.inactivity_timeout", s.InactivityTimeout},
		{"session.remember_me_timeout", s.RememberMeTimeout},
		{"session.warning_lead", s.WarningLead},
		{"session.tick_interval", s.TickInterval},
		{"session.validity_interval", s.ValidityInterval},
	} {
		if f.v <= 0 {
			add(f.name, "must be positive")
		}
	}
	if s.RefreshSkew < 0 {
		add("session.refresh_skew", "must not be negative")
	}
	if s.RefreshMinInterval < 0 {
		add("session.refresh_min_interval", "must not be negative")
	}
	if s.WarningLead >= s.InactivityTimeout && s.InactivityTimeout > 0 {
		add("session.warning_lead", "must be shorter than inactivity_timeout (%s)", s.InactivityTimeout)
	}
	if s.RememberMeTimeout < s.InactivityTimeout {
		add("session.remember_me_timeout", "must not be shorter than inactivity_timeout (%s)", s.InactivityTimeout)
	}
	if s.TickInterval > s.WarningLead && s.WarningLead > 0 {
		add("session.tick_interval", "must not exceed warning_lead (%s)", s.WarningLead)
	}

	// Storage
	switch strings.ToLower(c.Storage.Backend) {
	case "sqlite", "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			add("storage.redis_url", "required when backend is redis")
		} else if u, err := url.Parse(c.Storage.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			add("storage.redis_url", "must be a redis:// or rediss:// URL")
		}
	default:
		add("storage.backend", "invalid backend '%s', must be one of: sqlite, redis, memory", c.Storage.Backend)
	}
	if c.Storage.PollInterval <= 0 {
		add("storage.poll_interval", "must be positive")
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "off":
	default:
		add("log.level", "invalid level '%s', must be one of: trace, debug, info, warn, error, off", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "auto", "json", "console":
	default:
		add("log.format", "invalid format '%s', must be one of: auto, json, console", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme '%s', must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

// SetDefaults fills zero-valued fields from Default.
func (c *Config) SetDefaults() {
	d := Default()

	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
	if c.API.Timeout == 0 {
		c.API.Timeout = d.API.Timeout
	}

	setDur := func(v *Duration, def Duration) {
		if *v == 0 {
			*v = def
		}
	}
	setDur(&c.Session.InactivityTimeout, d.Session.InactivityTimeout)
	setDur(&c.Session.RememberMeTimeout, d.Session.RememberMeTimeout)
	setDur(&c.Session.WarningLead, d.Session.WarningLead)
	setDur(&c.Session.TickInterval, d.Session.TickInterval)
	setDur(&c.Session.ValidityInterval, d.Session.ValidityInterval)
	setDur(&c.Storage.PollInterval, d.Storage.PollInterval)

	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.Origin == "" {
		c.Storage.Origin = d.Storage.Origin
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TABSESSION_API_URL: overrides api.base_url
//   - TABSESSION_LOGIN_URL: overrides api.login_url
//   - TABSESSION_STORAGE: overrides storage.backend
//   - TABSESSION_STORAGE_DIR: overrides storage.dir
//   - TABSESSION_ORIGIN: overrides storage.origin
//   - TABSESSION_REDIS_URL: overrides storage.redis_url
//   - TABSESSION_INACTIVITY_TIMEOUT: overrides session.inactivity_timeout
//   - TABSESSION_REMEMBER_ME_TIMEOUT: overrides session.remember_me_timeout
//   - TABSESSION_WARNING_LEAD: overrides session.warning_lead
//   - TABSESSION_LOG_LEVEL: overrides log.level
//   - TABSESSION_LOG_FORMAT: overrides log.format
//
// Malformed durations are ignored.
func (c *Config) ApplyEnvOverrides() {
	strs := map[string]*string{
		"TABSESSION_API_URL":     &c.API.BaseURL,
		"TABSESSION_LOGIN_URL":   &c.API.LoginURL,
		"TABSESSION_STORAGE":     &c.Storage.Backend,
		"TABSESSION_STORAGE_DIR": &c.Storage.Dir,
		"TABSESSION_ORIGIN":      &c.Storage.Origin,
		"TABSESSION_REDIS_URL":   &c.Storage.RedisURL,
		"TABSESSION_LOG_LEVEL":   &c.Log.Level,
		"TABSESSION_LOG_FORMAT":  &c.Log.Format,
	}
	for env, dst := range strs {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	durs := map[string]*Duration{
		"TABSESSION_INACTIVITY_TIMEOUT":  &c.Session.InactivityTimeout,
		"TABSESSION_REMEMBER_ME_TIMEOUT": &c.Session.RememberMeTimeout,
		"TABSESSION_WARNING_LEAD":        &c.Session.WarningLead,
	}
	for env, dst := range durs {
		if v := os.Getenv(env); v != "" {
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err == nil {
				*dst = d
			}
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "session.warning_lead").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type; durations accept "90s", "2h".
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if key == "" || len(parts) == 0 {
		return reflect.Value{}, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			if err := u.UnmarshalText([]byte(strVal)); err != nil {
				return fmt.Errorf("invalid value %q: %v", strVal, err)
			}
			return nil
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// String renders the config as TOML with credentials in URLs redacted.
func (c *Config) String() string {
	safe := *c
	safe.Storage.RedisURL = redactURL(c.Storage.RedisURL)

	var buf bytes.Buffer
	_ = toml.NewEncoder(&buf).Encode(&safe)
	return buf.String()
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[REDACTED]"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "REDACTED")
	}
	return u.String()
}
