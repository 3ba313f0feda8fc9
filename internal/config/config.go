package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/loykin/trackdeck/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. TRACKDECK_SERVER_LISTEN.
const EnvPrefix = "TRACKDECK"

// Config represents the top-level TOML structure.
type Config struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Tracker  TrackerConfig  `toml:"tracker" mapstructure:"tracker"`
	Notifier NotifierConfig `toml:"notifier" mapstructure:"notifier"`
	Logs     LogsConfig     `toml:"logs" mapstructure:"logs"`
	Settings SettingsConfig `toml:"settings" mapstructure:"settings"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Auth     AuthConfig     `toml:"auth" mapstructure:"auth"`
	Gateway  GatewayConfig  `toml:"gateway" mapstructure:"gateway"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen" validate:"required,hostname_port"`
	BasePath string `toml:"base_path" mapstructure:"base_path" validate:"omitempty,startswith=/"`
}

// TrackerConfig launches `interpreter [interpreter_args...] script`.
type TrackerConfig struct {
	Interpreter     string   `toml:"interpreter" mapstructure:"interpreter" validate:"required"`
	InterpreterArgs []string `toml:"interpreter_args" mapstructure:"interpreter_args"`
	Script          string   `toml:"script" mapstructure:"script" validate:"required"`
	WorkDir         string   `toml:"workdir" mapstructure:"workdir"`
}

// NotifierConfig launches `executable -addr <addr> -data <data_dir>`.
type NotifierConfig struct {
	Executable string `toml:"executable" mapstructure:"executable" validate:"required"`
	Addr       string `toml:"addr" mapstructure:"addr" validate:"required"`
	DataDir    string `toml:"data_dir" mapstructure:"data_dir" validate:"required"`
	WorkDir    string `toml:"workdir" mapstructure:"workdir"`
}

// LogsConfig places the three channel files.
type LogsConfig struct {
	Dir string `toml:"dir" mapstructure:"dir" validate:"required"`
}

func (l LogsConfig) TrackerPath() string  { return filepath.Join(l.Dir, "tracker.log") }
func (l LogsConfig) NotifierPath() string { return filepath.Join(l.Dir, "bark.log") }
func (l LogsConfig) RemotePath() string   { return filepath.Join(l.Dir, "remote.log") }

// SettingsConfig selects the key/value settings store (see store/factory).
type SettingsConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn" validate:"required"`
}

type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	DSNs    []string `toml:"dsns" mapstructure:"dsns" validate:"dive,required"`
}

// LogConfig is the daemon's own log, not the channel logs.
type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format     string `toml:"format" mapstructure:"format" validate:"omitempty,oneof=text json"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Logger converts the section into the logger package configuration.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(l.Level),
			Format:     logger.Format(l.Format),
			Color:      l.Color,
			TimeStamps: l.TimeStamps,
		},
		File: logger.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

type AuthConfig struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	Username     string        `toml:"username" mapstructure:"username" validate:"required_if=Enabled true"`
	PasswordHash string        `toml:"password_hash" mapstructure:"password_hash" validate:"required_if=Enabled true"`
	JWTSecret    string        `toml:"jwt_secret" mapstructure:"jwt_secret" validate:"required_if=Enabled true"`
	TokenTTL     time.Duration `toml:"token_ttl" mapstructure:"token_ttl" validate:"gte=0"`
}

// GatewayConfig bounds control commands per WebSocket client.
type GatewayConfig struct {
	CommandRate  float64 `toml:"command_rate" mapstructure:"command_rate" validate:"gte=0"`
	CommandBurst int     `toml:"command_burst" mapstructure:"command_burst" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "0.0.0.0:6060")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("tracker.interpreter", "python3")
	v.SetDefault("tracker.interpreter_args", []string{"-u"})
	v.SetDefault("tracker.script", "main.py")
	v.SetDefault("tracker.workdir", "")
	v.SetDefault("notifier.executable", "./bark-server")
	v.SetDefault("notifier.addr", "0.0.0.0:8080")
	v.SetDefault("notifier.data_dir", "./bark-data")
	v.SetDefault("notifier.workdir", "")
	v.SetDefault("logs.dir", "logs")
	v.SetDefault("settings.dsn", ".env")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsns", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.timestamps", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("gateway.command_rate", 5.0)
	v.SetDefault("gateway.command_burst", 10)
}

// Load reads the TOML file at path (optional) on top of the defaults and
// applies TRACKDECK_* environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and returns one error listing every
// violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Auth.Enabled && len(c.Auth.JWTSecret) < 16 {
			return errors.New("invalid config: auth.jwt_secret must be at least 16 bytes")
		}
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
