// Package config is the engine's layered configuration loader: a
// bioinfoflow.yaml (or --config path) supplies defaults, BIOINFOFLOW_*
// environment variables override them, and CLI flags take final
// precedence (§7). Grounded on the reference stack's own
// internal/config.LoadConfig (viper.SetConfigName/AddConfigPath/
// AutomaticEnv/Unmarshal), generalized from that config's DB/auth/TLS
// sections to the engine's own field set.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every layered setting the engine, CLI and HTTP server read.
type Config struct {
	BaseDir            string `mapstructure:"base_dir"`
	MySQLDSN           string `mapstructure:"mysql_dsn"`
	DefaultParallelism int    `mapstructure:"default_parallelism"`
	DefaultTimeLimit   int64  `mapstructure:"default_time_limit"`
	GracePeriod        int64  `mapstructure:"grace_period"`
	WebPort            int    `mapstructure:"web_port"`
	DockerBinary       string `mapstructure:"docker_binary"`
}

// Defaults mirrors the engine's own fallback values, applied before any
// file or environment layer is read.
func Defaults() Config {
	return Config{
		BaseDir:            "./bioinfoflow-data",
		DefaultParallelism: 4,
		DefaultTimeLimit:   3600,
		GracePeriod:        10,
		WebPort:            8088,
		DockerBinary:       "docker",
	}
}

// Load resolves the layered configuration: defaults, then configPath (or
// ./bioinfoflow.yaml / ./config/bioinfoflow.yaml if configPath is empty),
// then BIOINFOFLOW_* environment variables. Missing config files are not
// an error: environment and defaults alone are a valid configuration.
func Load(configPath string) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("base_dir", defaults.BaseDir)
	v.SetDefault("default_parallelism", defaults.DefaultParallelism)
	v.SetDefault("default_time_limit", defaults.DefaultTimeLimit)
	v.SetDefault("grace_period", defaults.GracePeriod)
	v.SetDefault("web_port", defaults.WebPort)
	v.SetDefault("docker_binary", defaults.DockerBinary)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("bioinfoflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("BIOINFOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
