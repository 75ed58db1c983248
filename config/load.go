package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/caremarket/parentry/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the parentry configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return globalConfig, nil
}

// LoadWithViper loads configuration using a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
// Environment variables still override values from the file.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	bindEnv(v)
	SetDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config from %s", configPath)
	}
	return cfg, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	bindEnv(v)
	SetDefaults(v)

	// Merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v, configPaths())

	viperInstance = v
	return v
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("PARENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The postgres DSN usually carries credentials and is injected by the scheduler
	_ = v.BindEnv("database.dsn", "PARENTRY_DATABASE_DSN", "DATABASE_URL")
}

// configPaths returns candidate config files, lowest precedence first.
func configPaths() []string {
	paths := []string{"/etc/parentry/config.toml"}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".parentry", "config.toml"))
	}

	if dir, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(dir, "parentry.toml"))
	}

	return paths
}

// mergeConfigFiles merges existing files into v in the given order, so later
// files win. Missing or unreadable files are skipped.
func mergeConfigFiles(v *viper.Viper, paths []string) []string {
	var merged []string
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
		merged = append(merged, configPath)
	}
	return merged
}

// Sources returns the config files that contributed to the effective configuration.
func Sources() []string {
	var found []string
	for _, p := range configPaths() {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}
