package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/csfam/pawprint/internal/pawprint/faults"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

// ConfigFormatVersion is the current version of the configuration file format
const ConfigFormatVersion = "0.1.0"

// Environment variables that override secrets from the file.
const (
	EnvDatabaseDSN = "PAWPRINT_DB_DSN"
	EnvSecretKey   = "PAWPRINT_SECRET_KEY"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// AuthConfig holds session related configuration
type AuthConfig struct {
	TokenDuration string `toml:"token_duration"` // lifetime of a session token
	SweepInterval string `toml:"sweep_interval"` // how often expired sessions are purged, "0" disables
}

// GetTokenDuration returns the token duration. The value has been validated.
func (a *AuthConfig) GetTokenDuration() time.Duration {
	return mustParseDuration(a.TokenDuration)
}

func (a *AuthConfig) GetSweepInterval() time.Duration {
	return mustParseDuration(a.SweepInterval)
}

// RPCConfig holds settings for calls to Trac servers
type RPCConfig struct {
	Timeout              string `toml:"timeout"`
	APIVersionConstraint string `toml:"api_version_constraint"` // e.g. ">= 1.1"
	InsecureSkipVerify   bool   `toml:"insecure_skip_verify"`
}

func (r *RPCConfig) GetTimeout() time.Duration {
	return mustParseDuration(r.Timeout)
}

// PostgresConfig holds the postgres session store settings
type PostgresConfig struct {
	DSN             string `toml:"dsn"`
	Schema          string `toml:"schema"`
	SecretKey       string `toml:"secret_key"` // base64, 32 bytes; seals stored passwords
	MaxOpenConns    int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int    `toml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	ConnectAttempts uint   `toml:"connect_attempts"`
}

func (p *PostgresConfig) GetConnMaxLifetime() time.Duration {
	return mustParseDuration(p.ConnMaxLifetime)
}

type StorageConfig struct {
	Backend  string         `toml:"backend" validate:"required,oneof=memory postgres"`
	Postgres PostgresConfig `toml:"postgres"`
}

// ConfigParam holds all configuration parameters for the proxy
type ConfigParam struct {
	// Configuration version
	FormatVersion string `toml:"format_version" validate:"required"`

	// Server configuration
	ServerHostName   string `toml:"server_hostname"`
	ServerPort       string `toml:"server_port" validate:"required,numeric"`
	HandleCORS       bool   `toml:"handle_cors"`
	StrictHTTPStatus bool   `toml:"strict_http_status"` // send failures with their HTTP status instead of 200
	RequestTimeout   string `toml:"request_timeout"`
	LogLevel         string `toml:"log_level" validate:"omitempty,oneof=trace debug info warn error disabled"`

	Auth       AuthConfig    `toml:"auth"`
	RPC        RPCConfig     `toml:"rpc"`
	Storage    StorageConfig `toml:"storage"`
	ErrorCodes faults.Codes  `toml:"error_codes"`
}

// GetRequestTimeout returns the whole-request deadline.
func (c *ConfigParam) GetRequestTimeout() time.Duration {
	return mustParseDuration(c.RequestTimeout)
}

// ListenAddr is the address the HTTP server binds to.
func (c *ConfigParam) ListenAddr() string {
	return c.ServerHostName + ":" + c.ServerPort
}

var cfg *ConfigParam

// Config returns the current configuration
func Config() *ConfigParam {
	return cfg
}

// ParseDuration accepts Go duration syntax ("90s", "1h30m") and the short
// form "<number><unit>" where unit is one of s, m, h, d (days) or y (365 days).
// "0" is a zero duration.
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	if input == "0" {
		return 0, nil
	}
	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid input format")
	}

	unit := input[len(input)-1:]
	valueStr := input[:len(input)-1]
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", err)
	}

	var duration time.Duration
	switch unit {
	case "d":
		duration = time.Duration(value) * 24 * time.Hour
	case "y":
		duration = time.Duration(value) * 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}
	return duration, nil
}

func mustParseDuration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v", s, err))
	}
	return d
}

// defaults are applied before the file is decoded, so a file only needs to
// name what it changes.
func defaults() *ConfigParam {
	return &ConfigParam{
		ServerPort:     "8080",
		RequestTimeout: "60s",
		LogLevel:       "info",
		Auth: AuthConfig{
			TokenDuration: "24h",
			SweepInterval: "10m",
		},
		RPC: RPCConfig{
			Timeout: "20s",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Postgres: PostgresConfig{
				Schema:          "pawprint",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: "30m",
				ConnectAttempts: 5,
			},
		},
		ErrorCodes: faults.DefaultCodes(),
	}
}

// Default returns a valid configuration that uses only built-in values.
func Default() *ConfigParam {
	c := defaults()
	c.FormatVersion = ConfigFormatVersion
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks if all required configuration values are present and valid
func ValidateConfig(cfg *ConfigParam) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q check", fe.Namespace(), fe.Tag())
		}
		return err
	}

	if cfg.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}

	durations := []struct {
		name     string
		value    string
		positive bool
	}{
		{"request_timeout", cfg.RequestTimeout, true},
		{"auth.token_duration", cfg.Auth.TokenDuration, true},
		{"auth.sweep_interval", cfg.Auth.SweepInterval, false},
		{"rpc.timeout", cfg.RPC.Timeout, true},
		{"storage.postgres.conn_max_lifetime", cfg.Storage.Postgres.ConnMaxLifetime, false},
	}
	for _, d := range durations {
		v, err := ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %v", d.name, err)
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if cfg.RPC.APIVersionConstraint != "" {
		if _, err := semver.NewConstraint(cfg.RPC.APIVersionConstraint); err != nil {
			return fmt.Errorf("invalid rpc.api_version_constraint: %v", err)
		}
	}

	if cfg.Storage.Backend == BackendPostgres {
		pg := cfg.Storage.Postgres
		if pg.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required (or set %s)", EnvDatabaseDSN)
		}
		if pg.SecretKey == "" {
			return fmt.Errorf("storage.postgres.secret_key is required (or set %s)", EnvSecretKey)
		}
		if _, err := sessionstore.ParseKey(pg.SecretKey); err != nil {
			return fmt.Errorf("invalid storage.postgres.secret_key: %v", err)
		}
		if pg.Schema == "" {
			return fmt.Errorf("storage.postgres.schema is required")
		}
	}

	if err := cfg.ErrorCodes.Validate(); err != nil {
		return fmt.Errorf("invalid error_codes: %v", err)
	}
	return nil
}

// ParseConfig decodes and validates a configuration document. Environment
// overrides are applied between the two steps.
func ParseConfig(content string) (*ConfigParam, error) {
	c := defaults()
	if _, err := toml.Decode(content, c); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}
	applyEnv(c)
	if err := ValidateConfig(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}
	return c, nil
}

func applyEnv(c *ConfigParam) {
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		c.Storage.Postgres.SecretKey = v
	}
}

// LoadConfig loads configuration from a file. A .env file in the working
// directory, if present, is loaded into the environment first.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error loading .env: %v", err)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}
	c, err := ParseConfig(string(content))
	if err != nil {
		return err
	}
	cfg = c
	return nil
}
