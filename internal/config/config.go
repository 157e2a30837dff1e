// Package config loads and validates portsweep configuration.
package config

import (
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600

	// EnvPrefix prefixes environment overrides, e.g. PORTSWEEP_API_PORT.
	EnvPrefix = "PORTSWEEP"
)

// Config is the complete portsweep configuration.
type Config struct {
	Scanning  ScanningConfig   `yaml:"scanning" json:"scanning" mapstructure:"scanning"`
	Database  db.Config        `yaml:"database" json:"database" mapstructure:"database"`
	API       APIConfig        `yaml:"api" json:"api" mapstructure:"api"`
	Jobs      JobsConfig       `yaml:"jobs" json:"jobs" mapstructure:"jobs"`
	Logging   logging.Config   `yaml:"logging" json:"logging" mapstructure:"logging"`
	Schedules []ScheduleConfig `yaml:"schedules" json:"schedules" mapstructure:"schedules" validate:"dive"`
}

// ScanningConfig holds defaults applied to scans that do not set their own.
type ScanningConfig struct {
	Timeout          time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"min=1s,max=60s"`
	Concurrency      int           `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency" validate:"min=1,max=500"`
	Ports            string        `yaml:"ports" json:"ports" mapstructure:"ports" validate:"required"`
	Protocols        []string      `yaml:"protocols" json:"protocols" mapstructure:"protocols" validate:"min=1,dive,oneof=TCP UDP tcp udp"`
	ProgressInterval int           `yaml:"progress_interval" json:"progress_interval" mapstructure:"progress_interval" validate:"min=1"`
	PreviewLimit     int           `yaml:"preview_limit" json:"preview_limit" mapstructure:"preview_limit" validate:"min=0"`
	MaxProbes        int           `yaml:"max_probes" json:"max_probes" mapstructure:"max_probes" validate:"min=1"`
	ProfilesFile     string        `yaml:"profiles_file" json:"profiles_file" mapstructure:"profiles_file"`

	// UDPPayloads replaces or adds probe payloads for specific ports.
	UDPPayloads []PayloadOverride `yaml:"udp_payloads" json:"udp_payloads" mapstructure:"udp_payloads" validate:"dive"`
}

// PayloadOverride is a hex-encoded UDP payload for one port.
type PayloadOverride struct {
	Port int    `yaml:"port" json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Hex  string `yaml:"hex" json:"hex" mapstructure:"hex" validate:"required,hexadecimal"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ListenAddr      string        `yaml:"listen_addr" json:"listen_addr" mapstructure:"listen_addr"`
	Port            int           `yaml:"port" json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxRequestSize  int64         `yaml:"max_request_size" json:"max_request_size" mapstructure:"max_request_size" validate:"min=0"`

	// APIKeyHashes are bcrypt hashes of accepted API keys. Empty disables auth.
	APIKeyHashes []string `yaml:"api_key_hashes" json:"-" mapstructure:"api_key_hashes"`

	CORS      CORSConfig      `yaml:"cors" json:"cors" mapstructure:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit" mapstructure:"rate_limit"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers" mapstructure:"allowed_headers"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" json:"burst" mapstructure:"burst" validate:"min=0"`
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" mapstructure:"max_concurrent" validate:"min=1,max=64"`
	// ProgressUpdateInterval throttles progress writes to the database.
	ProgressUpdateInterval time.Duration `yaml:"progress_update_interval" json:"progress_update_interval" mapstructure:"progress_update_interval"`
	RecoverOnStart         bool          `yaml:"recover_on_start" json:"recover_on_start" mapstructure:"recover_on_start"`
}

// ScheduleConfig is a recurring scan.
type ScheduleConfig struct {
	Name        string        `yaml:"name" json:"name" mapstructure:"name" validate:"required,max=64"`
	Cron        string        `yaml:"cron" json:"cron" mapstructure:"cron" validate:"required"`
	Target      string        `yaml:"target" json:"target" mapstructure:"target" validate:"required"`
	Ports       string        `yaml:"ports" json:"ports" mapstructure:"ports"`
	Profile     string        `yaml:"profile" json:"profile" mapstructure:"profile"`
	Protocols   []string      `yaml:"protocols" json:"protocols" mapstructure:"protocols" validate:"omitempty,dive,oneof=TCP UDP tcp udp"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"omitempty,min=1s,max=60s"`
	Concurrency int           `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency" validate:"omitempty,min=1,max=500"`
	Disabled    bool          `yaml:"disabled" json:"disabled" mapstructure:"disabled"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			Timeout:          scanning.DefaultTimeout,
			Concurrency:      scanning.DefaultConcurrency,
			Ports:            scanning.DefaultPorts,
			Protocols:        []string{"TCP"},
			ProgressInterval: scanning.DefaultProgressInterval,
			PreviewLimit:     scanning.DefaultPreviewLimit,
			MaxProbes:        scanning.DefaultMaxProbes,
		},
		Database: db.DefaultConfig(),
		API: APIConfig{
			Enabled:         true,
			ListenAddr:      "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestSize:  1024 * 1024,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		Jobs: JobsConfig{
			MaxConcurrent:          4,
			ProgressUpdateInterval: time.Second,
			RecoverOnStart:         true,
		},
		Logging:   logging.DefaultConfig(),
		Schedules: []ScheduleConfig{},
	}
}

// Load reads a YAML configuration file over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if stderrors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse config file", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FromViper decodes configuration from v. Every default is registered with v
// first so PORTSWEEP_* environment variables override nested keys.
func FromViper(v *viper.Viper) (*Config, error) {
	config := Default()
	if err := registerDefaults(v, config); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) && !stderrors.Is(err, os.ErrNotExist) {
				return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
			}
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to decode configuration", err)
	}
	// An empty default list decodes as an empty slice rather than nil.
	if len(config.Scanning.UDPPayloads) == 0 {
		config.Scanning.UDPPayloads = nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func registerDefaults(v *viper.Viper, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to encode defaults", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to encode defaults", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, value)
	}
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to marshal config", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to write config file", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}

	if _, err := scanning.ExpandPorts(profiles.ResolvePorts(c.Scanning.Ports)); err != nil {
		return errors.NewConfigFieldError(errors.CodeValidation, "invalid default ports", "scanning.ports", c.Scanning.Ports)
	}
	if _, err := c.Scanning.PayloadOverrides(); err != nil {
		return err
	}

	if c.API.Enabled && c.API.ListenAddr == "" {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"listen address is required when the API is enabled", "api.listen_addr", c.API.ListenAddr)
	}
	if c.API.RateLimit.Enabled && (c.API.RateLimit.RequestsPerSecond <= 0 || c.API.RateLimit.Burst < 1) {
		return errors.NewConfigFieldError(errors.CodeValidation,
			"rate limit needs a positive rate and burst", "api.rate_limit", c.API.RateLimit)
	}

	names := make(map[string]bool, len(c.Schedules))
	for i := range c.Schedules {
		s := &c.Schedules[i]
		field := fmt.Sprintf("schedules[%d]", i)
		if names[s.Name] {
			return errors.NewConfigFieldError(errors.CodeValidation, "duplicate schedule name", field+".name", s.Name)
		}
		names[s.Name] = true

		if s.Ports == "" && s.Profile == "" {
			return errors.NewConfigFieldError(errors.CodeValidation, "schedule needs ports or a profile", field, s.Name)
		}
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return errors.NewConfigFieldError(errors.CodeValidation, "invalid cron expression", field+".cron", s.Cron)
		}
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("failed %q constraint", fe.Tag()), fe.Namespace(), fe.Value())
	}
	return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
}

// ScanConfig returns the default per-scan settings.
func (s *ScanningConfig) ScanConfig() scanning.Config {
	return scanning.Config{Timeout: s.Timeout, Concurrency: s.Concurrency}
}

// ProtocolList parses the default protocols.
func (s *ScanningConfig) ProtocolList() ([]scanning.Protocol, error) {
	return scanning.ParseProtocols(s.Protocols)
}

// PayloadOverrides decodes the configured UDP payloads by port.
func (s *ScanningConfig) PayloadOverrides() (map[int][]byte, error) {
	out := make(map[int][]byte, len(s.UDPPayloads))
	for _, p := range s.UDPPayloads {
		raw := strings.TrimPrefix(strings.TrimPrefix(p.Hex, "0x"), "0X")
		data, err := hex.DecodeString(raw)
		if err != nil {
			return nil, errors.NewConfigFieldError(errors.CodeValidation, "invalid payload hex", "scanning.udp_payloads", p.Hex)
		}
		out[p.Port] = data
	}
	return out, nil
}

// APIAddress returns host:port for the API listener.
func (c *Config) APIAddress() string {
	return net.JoinHostPort(c.API.ListenAddr, strconv.Itoa(c.API.Port))
}
