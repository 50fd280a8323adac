package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/logging"
)

var (
	cfgFile string
	// cfgErr holds a config file read failure until a command loads its
	// configuration.
	cfgErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "A small static blog toolchain",
	Long: `quill renders a directory of markdown posts into static HTML and serves
the result from a fixed-size worker pool.

Quick Start:
  quill build                     Render content/ into output/
  quill serve                     Serve output/ on 127.0.0.1:8080
  quill watch                     Rebuild and restart on every change

Command Aliases:
  build (b), serve (s), watch (w)

Configuration is read from flags, QUILL_<SECTION>_<KEY> environment
variables, QUILL_CONFIG_FILE and .quill.yml, in that order. .env and
.env.local are loaded into the environment first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .quill.yml, can also use QUILL_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "auto", "log format (text, json, auto)")

	mustBind("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBind("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// mustBind binds a flag to a config key. Binding only fails for a nil flag,
// which is a programming error.
func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// flagKeys maps command flags to the config keys they override.
var flagKeys = map[string]string{
	"host":            "server.host",
	"port":            "server.port",
	"workers":         "server.workers",
	"queue-size":      "server.queue_size",
	"max-connections": "server.max_connections",
	"cache-ttl":       "server.cache_ttl",
	"content":         "site.content_dir",
	"output":          "site.output_dir",
	"title":           "site.title",
	"debounce":        "watch.debounce",
	"build-on-start":  "watch.build_on_start",
	"metrics-addr":    "metrics.addr",
}

// bindFlags binds the running command's flags. Several commands share flag
// names, so binding happens per invocation rather than in init.
func bindFlags(cmd *cobra.Command, args []string) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && err == nil {
			err = viper.BindPFlag(key, f)
		}
	})

	return err
}

// initConfig wires every configuration source into the global viper.
//
// Config file priority (highest to lowest):
//  1. --config flag
//  2. QUILL_CONFIG_FILE environment variable
//  3. .quill.yml in the current directory, if present
func initConfig() {
	loadEnvFiles()

	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("QUILL_CONFIG_FILE"); envConfigFile != "" {
		v.SetConfigFile(envConfigFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".quill")
	}

	cfgErr = nil
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cfgErr = fmt.Errorf("reading config file: %w", err)
		}
	}
}

// loadEnvFiles loads .env.local and then .env. godotenv never overrides a
// variable that is already set, so the real environment wins over
// .env.local, which wins over .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// loadConfig returns the validated configuration and a logger built from
// it.
func loadConfig() (*config.Config, logging.Logger, error) {
	if cfgErr != nil {
		return nil, nil, cfgErr
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg config.LogConfig) logging.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		level = logging.LevelInfo
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
}
