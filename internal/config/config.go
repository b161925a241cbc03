// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/silohub/chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete silochat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Completion service
	Service ServiceConfig `toml:"service" json:"service"`

	// Conversation history persistence
	History HistoryConfig `toml:"history" json:"history"`

	// Response stream decoding
	Stream StreamConfig `toml:"stream" json:"stream"`

	// Per-exchange limits
	Exchange ExchangeConfig `toml:"exchange" json:"exchange"`

	Log     LogConfig     `toml:"log" json:"log"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
}

// ServiceConfig configures the completion service connection.
type ServiceConfig struct {
	// BaseURL is the root of the completion service.
	BaseURL string `toml:"base_url" json:"base_url"`

	// HeaderTimeoutSecs bounds the wait for response headers. The stream
	// body itself is bounded by exchange.timeout_secs.
	HeaderTimeoutSecs int `toml:"header_timeout_secs" json:"header_timeout_secs"`

	// RequestsPerSecond limits outgoing prompts. Zero disables limiting.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`

	// Headers are added to every request, e.g. Authorization.
	Headers map[string]string `toml:"headers" json:"headers,omitempty"`
}

// HistoryConfig selects and configures the history backend.
type HistoryConfig struct {
	// Backend is one of: none, http, sqlite, file.
	Backend string `toml:"backend" json:"backend"`

	// Path is the database file (sqlite) or directory (file).
	Path string `toml:"path" json:"path"`

	// URL is the history service root (http). Defaults to service.base_url.
	URL string `toml:"url" json:"url"`

	TimeoutSecs      int `toml:"timeout_secs" json:"timeout_secs"`
	ReadConcurrency  int `toml:"read_concurrency" json:"read_concurrency"`
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// StreamConfig configures record decoding.
type StreamConfig struct {
	ChunkSize      int `toml:"chunk_size" json:"chunk_size"`
	MaxRecordBytes int `toml:"max_record_bytes" json:"max_record_bytes"`
}

// ExchangeConfig configures prompt exchanges.
type ExchangeConfig struct {
	// TimeoutSecs bounds a whole exchange. Zero means no limit.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Pretty bool   `toml:"pretty" json:"pretty"`
	Caller bool   `toml:"caller" json:"caller"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" json:"addr"`
}

// History backend names.
const (
	BackendNone   = "none"
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Service: ServiceConfig{
			BaseURL:           "http://127.0.0.1:5000",
			HeaderTimeoutSecs: 60,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		History: HistoryConfig{
			Backend:          BackendSQLite,
			TimeoutSecs:      30,
			ReadConcurrency:  4,
			MaxConversations: 100,
		},
		Stream: StreamConfig{
			ChunkSize:      32 * 1024,
			MaxRecordBytes: 4 * 1024 * 1024,
		},
		Exchange: ExchangeConfig{
			TimeoutSecs: 300,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// HeaderTimeout returns service.header_timeout_secs as a duration.
func (s ServiceConfig) HeaderTimeout() time.Duration {
	return time.Duration(s.HeaderTimeoutSecs) * time.Second
}

// Timeout returns history.timeout_secs as a duration.
func (h HistoryConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSecs) * time.Second
}

// Timeout returns exchange.timeout_secs as a duration.
func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the silochat configuration directory path.
// SILOCHAT_HOME overrides the default ~/.silochat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("SILOCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".silochat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// defaultHistoryPath returns the backend path used when history.path is empty.
func defaultHistoryPath(backend string) string {
	dir, err := ConfigDir()
	if err != nil {
		dir = "."
	}
	switch backend {
	case BackendSQLite:
		return filepath.Join(dir, "history.db")
	case BackendFile:
		return filepath.Join(dir, "conversations")
	default:
		return ""
	}
}

// ensureSecurePermissions tightens config files to 0600. Headers may carry
// credentials.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		return LoadFromPath(path)
	}

	cfg := Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Missing values take their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish runs the post-decode pipeline shared by every load path.
func finish(cfg *Config) error {
	cfg.ApplyEnvOverrides()
	cfg.Migrate()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# silochat configuration file\n")
	buf.WriteString("# Generated by silochat - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Service
	if err := validateURL(c.Service.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "service.base_url", Message: err.Error()})
	}
	if c.Service.HeaderTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "service.header_timeout_secs", Message: "must not be negative"})
	}
	if c.Service.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "service.requests_per_second", Message: "must not be negative"})
	}
	if c.Service.Burst < 1 {
		errs = append(errs, ValidationError{Field: "service.burst", Message: "must be at least 1"})
	}

	// History
	switch c.History.Backend {
	case BackendNone, BackendSQLite, BackendFile:
	case BackendHTTP:
		if err := validateURL(c.History.URL); err != nil {
			errs = append(errs, ValidationError{Field: "history.url", Message: err.Error()})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "history.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: none, http, sqlite, file", c.History.Backend),
		})
	}
	if c.History.ReadConcurrency < 1 {
		errs = append(errs, ValidationError{Field: "history.read_concurrency", Message: "must be at least 1"})
	}
	if c.History.MaxConversations < 0 {
		errs = append(errs, ValidationError{Field: "history.max_conversations", Message: "must not be negative"})
	}

	// Stream
	if c.Stream.ChunkSize < 1 {
		errs = append(errs, ValidationError{Field: "stream.chunk_size", Message: "must be at least 1"})
	}
	if c.Stream.MaxRecordBytes < c.Stream.ChunkSize {
		errs = append(errs, ValidationError{Field: "stream.max_record_bytes", Message: "must be at least stream.chunk_size"})
	}

	// Exchange
	if c.Exchange.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "exchange.timeout_secs", Message: "must not be negative"})
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s'", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
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

// SetDefaults fills zero values with their defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Service.BaseURL == "" {
		c.Service.BaseURL = defaults.Service.BaseURL
	}
	c.Service.BaseURL = strings.TrimRight(c.Service.BaseURL, "/")
	if c.Service.HeaderTimeoutSecs == 0 {
		c.Service.HeaderTimeoutSecs = defaults.Service.HeaderTimeoutSecs
	}
	if c.Service.Burst == 0 {
		c.Service.Burst = defaults.Service.Burst
	}

	if c.History.Backend == "" {
		c.History.Backend = defaults.History.Backend
	}
	if c.History.Path == "" {
		c.History.Path = defaultHistoryPath(c.History.Backend)
	}
	if c.History.Backend == BackendHTTP && c.History.URL == "" {
		c.History.URL = c.Service.BaseURL
	}
	if c.History.TimeoutSecs == 0 {
		c.History.TimeoutSecs = defaults.History.TimeoutSecs
	}
	if c.History.ReadConcurrency == 0 {
		c.History.ReadConcurrency = defaults.History.ReadConcurrency
	}
	if c.History.MaxConversations == 0 {
		c.History.MaxConversations = defaults.History.MaxConversations
	}

	if c.Stream.ChunkSize == 0 {
		c.Stream.ChunkSize = defaults.Stream.ChunkSize
	}
	if c.Stream.MaxRecordBytes == 0 {
		c.Stream.MaxRecordBytes = defaults.Stream.MaxRecordBytes
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = defaults.Metrics.Addr
	}
}

// Migrate rewrites values from older config files into their current form.
func (c *Config) Migrate() {
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	switch c.History.Backend {
	case "cosmos", "remote":
		c.History.Backend = BackendHTTP
	case "sqlite3", "db":
		c.History.Backend = BackendSQLite
	case "json", "files":
		c.History.Backend = BackendFile
	case "off", "disabled":
		c.History.Backend = BackendNone
	}
	if c.Version == "" {
		c.Version = CurrentVersion
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SILOCHAT_BASE_URL: overrides service.base_url
//   - SILOCHAT_API_KEY: sets the Authorization bearer header
//   - SILOCHAT_HISTORY: overrides history.backend
//   - SILOCHAT_HISTORY_PATH: overrides history.path
//   - SILOCHAT_HISTORY_URL: overrides history.url
//   - SILOCHAT_EXCHANGE_TIMEOUT: overrides exchange.timeout_secs
//   - SILOCHAT_LOG_LEVEL: overrides log.level
//   - SILOCHAT_LOG_PRETTY: set to "1" or "true" for console logs
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SILOCHAT_BASE_URL"); v != "" {
		c.Service.BaseURL = v
	}
	if v := os.Getenv("SILOCHAT_API_KEY"); v != "" {
		if c.Service.Headers == nil {
			c.Service.Headers = make(map[string]string)
		}
		c.Service.Headers["Authorization"] = "Bearer " + v
	}
	if v := os.Getenv("SILOCHAT_HISTORY"); v != "" {
		c.History.Backend = v
	}
	if v := os.Getenv("SILOCHAT_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("SILOCHAT_HISTORY_URL"); v != "" {
		c.History.URL = v
	}
	if v := os.Getenv("SILOCHAT_EXCHANGE_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Exchange.TimeoutSecs = secs
		}
	}
	if v := os.Getenv("SILOCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SILOCHAT_LOG_PRETTY"); v != "" {
		c.Log.Pretty = v == "1" || strings.ToLower(v) == "true"
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "history.backend").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
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

// fieldByTag finds a struct field by its toml tag.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tomlName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func tomlName(f reflect.StructField) string {
	tag := f.Tag.Get("toml")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	return tag
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
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
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
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

// GetAllKeys returns all scalar configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(prefix string, t reflect.Type)
	walk = func(prefix string, t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := tomlName(f)
			if prefix != "" {
				name = prefix + "." + name
			}
			switch f.Type.Kind() {
			case reflect.Struct:
				walk(name, f.Type)
			case reflect.Map:
				// headers are edited in the file
			default:
				keys = append(keys, name)
			}
		}
	}
	walk("", reflect.TypeOf(Config{}))
	sort.Strings(keys)
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Service.Headers != nil {
		clone.Service.Headers = make(map[string]string, len(c.Service.Headers))
		for k, v := range c.Service.Headers {
			clone.Service.Headers[k] = v
		}
	}
	return &clone
}

// String returns a JSON rendering of the config with header values redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for k := range safe.Service.Headers {
		safe.Service.Headers[k] = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.SetDefaults()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
