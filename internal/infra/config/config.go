// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/exitcall/internal/domain/call"
)

// DefaultFallbackRingtone is played for built-in ringtones without a mapped source.
const DefaultFallbackRingtone = "https://www.soundjay.com/phone/sounds/telephone-ring-01a.mp3"

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Call      CallConfig      `yaml:"call"`
	Ringtones RingtonesConfig `yaml:"ringtones"`
	Uploads   UploadsConfig   `yaml:"uploads"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// DatabaseConfig selects the settings and session store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" default:"sqlite" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" default:"exitcall.db" validate:"required"`
	Debug  bool   `yaml:"debug"`
}

// CallConfig represents call session housekeeping.
type CallConfig struct {
	// StaleAfterSec expires sessions left incoming for longer. 0 disables.
	StaleAfterSec     int `yaml:"stale_after_sec" default:"0" validate:"gte=0"`
	ExpireIntervalSec int `yaml:"expire_interval_sec" default:"60" validate:"gte=1,lte=86400"`
}

// RingtonesConfig represents local ringtone playback.
type RingtonesConfig struct {
	Volume        float64           `yaml:"volume" default:"0.5" validate:"gt=0,lte=1"`
	Builtin       map[string]string `yaml:"builtin"`
	Fallback      string            `yaml:"fallback"`
	PlayerCommand string            `yaml:"player_command"`
	RestartDelay  int               `yaml:"restart_delay_ms" default:"200" validate:"gte=0,lte=10000"`
}

// UploadsConfig represents the custom ringtone upload service.
type UploadsConfig struct {
	Dir        string `yaml:"dir" default:"ringtones" validate:"required"`
	PublicPath string `yaml:"public_path" default:"/ringtones/" validate:"startswith=/,endswith=/"`
	MaxBytes   int64  `yaml:"max_bytes" default:"10485760" validate:"gt=0"`
}

// RedisConfig represents the optional navigation relay.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Channel  string `yaml:"channel" default:"exitcall:navigation"`
}

// MetricsConfig represents the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	cfg.Ringtones.setBuiltinDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("EXITCALL_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("EXITCALL_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("EXITCALL_PLAYER_COMMAND"); v != "" {
		c.Ringtones.PlayerCommand = v
	}
}

// setBuiltinDefaults fills in sources for built-in ringtones the file left out.
// Vibration has no audio and maps to an empty source.
func (r *RingtonesConfig) setBuiltinDefaults() {
	if r.Fallback == "" {
		r.Fallback = DefaultFallbackRingtone
	}
	if r.Builtin == nil {
		r.Builtin = make(map[string]string)
	}
	for _, id := range []string{call.RingtoneClassic, call.RingtoneUrgent} {
		if _, ok := r.Builtin[id]; !ok {
			r.Builtin[id] = r.Fallback
		}
	}
	if _, ok := r.Builtin[call.RingtoneVibration]; !ok {
		r.Builtin[call.RingtoneVibration] = ""
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for id := range c.Ringtones.Builtin {
		if !call.IsBuiltinRingtone(id) {
			return errors.Newf("unknown built-in ringtone %q", id)
		}
	}

	return nil
}

// StaleAfter returns the session expiry age, or 0 when expiry is disabled.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Call.StaleAfterSec) * time.Second
}

// ExpireInterval returns how often stale sessions are swept.
func (c *Config) ExpireInterval() time.Duration {
	return time.Duration(c.Call.ExpireIntervalSec) * time.Second
}

// RestartDelay returns the pause between player restarts.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Ringtones.RestartDelay) * time.Millisecond
}
