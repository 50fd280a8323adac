// Package config loads quill configuration through Viper from flags,
// QUILL_ prefixed environment variables and an optional YAML file.
//
// Every key has a default registered by SetDefaults, so a missing config
// file yields a working development setup: the content directory is built
// into ./output and served on 127.0.0.1:8080.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/quill/internal/errors"
)

// EnvPrefix is prepended to every environment variable, e.g.
// QUILL_SERVER_PORT for server.port.
const EnvPrefix = "QUILL"

// ErrInvalidConfig is returned when loaded values fail validation.
var ErrInvalidConfig = errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration")

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Site    SiteConfig    `mapstructure:"site" yaml:"site"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	QueueSize      int           `mapstructure:"queue_size" yaml:"queue_size"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	HomeDocument   string        `mapstructure:"home_document" yaml:"home_document"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	SleepRoute     string        `mapstructure:"sleep_route" yaml:"sleep_route"`
	SleepDuration  time.Duration `mapstructure:"sleep_duration" yaml:"sleep_duration"`
}

type SiteConfig struct {
	Title      string `mapstructure:"title" yaml:"title"`
	ContentDir string `mapstructure:"content_dir" yaml:"content_dir"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
}

type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore       []string      `mapstructure:"ignore" yaml:"ignore"`
	BuildOnStart bool          `mapstructure:"build_on_start" yaml:"build_on_start"`
}

type MetricsConfig struct {
	// Addr is where /metrics is exposed. Empty disables the exporter.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          8080,
			Workers:       4,
			ReadTimeout:   30 * time.Second,
			HomeDocument:  "index.html",
			SleepRoute:    "/sleep",
			SleepDuration: 5 * time.Second,
		},
		Site: SiteConfig{
			Title:      "My Blog",
			ContentDir: "content",
			OutputDir:  "output",
		},
		Watch: WatchConfig{
			Debounce:     300 * time.Millisecond,
			Ignore:       []string{"*.swp", "*~", ".#*"},
			BuildOnStart: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SetDefaults registers every key with v. Viper only unmarshals environment
// variables for keys it knows about, so this must run before Load.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.queue_size", d.Server.QueueSize)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.home_document", d.Server.HomeDocument)
	v.SetDefault("server.cache_ttl", d.Server.CacheTTL)
	v.SetDefault("server.sleep_route", d.Server.SleepRoute)
	v.SetDefault("server.sleep_duration", d.Server.SleepDuration)

	v.SetDefault("site.title", d.Site.Title)
	v.SetDefault("site.content_dir", d.Site.ContentDir)
	v.SetDefault("site.output_dir", d.Site.OutputDir)

	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("watch.build_on_start", d.Watch.BuildOnStart)

	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// BindEnv makes v read QUILL_<SECTION>_<KEY> environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load unmarshals the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v, fills zero values with defaults and validates the
// result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}

	applyDefaults(v, &config)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults covers viper instances that were never passed to
// SetDefaults. Only keys that were not set explicitly are touched, so an
// explicit zero such as build_on_start=false survives.
func applyDefaults(v *viper.Viper, config *Config) {
	d := Default()

	if config.Server.Host == "" {
		config.Server.Host = d.Server.Host
	}
	if !v.IsSet("server.port") {
		config.Server.Port = d.Server.Port
	}
	if config.Server.Workers == 0 && !v.IsSet("server.workers") {
		config.Server.Workers = d.Server.Workers
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if config.Server.HomeDocument == "" {
		config.Server.HomeDocument = d.Server.HomeDocument
	}
	if !v.IsSet("server.sleep_route") {
		config.Server.SleepRoute = d.Server.SleepRoute
	}
	if config.Server.SleepDuration == 0 {
		config.Server.SleepDuration = d.Server.SleepDuration
	}

	if config.Site.Title == "" {
		config.Site.Title = d.Site.Title
	}
	if config.Site.ContentDir == "" {
		config.Site.ContentDir = d.Site.ContentDir
	}
	if config.Site.OutputDir == "" {
		config.Site.OutputDir = d.Site.OutputDir
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = d.Watch.Debounce
	}
	if !v.IsSet("watch.ignore") {
		config.Watch.Ignore = d.Watch.Ignore
	}
	if !v.IsSet("watch.build_on_start") {
		config.Watch.BuildOnStart = d.Watch.BuildOnStart
	}

	if config.Log.Level == "" {
		config.Log.Level = d.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = d.Log.Format
	}
}
