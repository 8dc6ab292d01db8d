package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Template string `mapstructure:"template"`
	Split    bool   `mapstructure:"split"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
	Release     string `mapstructure:"release"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Platform string        `mapstructure:"platform"`
	Root     string        `mapstructure:"root"`
	Log      LogConfig     `mapstructure:"log"`
	Sentry   SentryConfig  `mapstructure:"sentry"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

var defaultConfig = Config{
	Platform: "auto",
	Log: LogConfig{
		Level:  "info",
		Format: "text",
	},
}

const configName = "nativecron"

func configPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "nativecron"))
	}

	return append(paths, "/etc/nativecron")
}

// Load reads nativecron.yaml from the working directory, the user config
// directory or /etc/nativecron (first found wins), then applies
// NATIVECRON_* environment overrides. A missing file is not an error.
// An explicit file, when given, must exist.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("platform", defaultConfig.Platform)
	v.SetDefault("root", defaultConfig.Root)
	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.format", defaultConfig.Log.Format)
	v.SetDefault("log.template", defaultConfig.Log.Template)
	v.SetDefault("log.split", defaultConfig.Log.Split)
	v.SetDefault("sentry.dsn", defaultConfig.Sentry.DSN)
	v.SetDefault("sentry.environment", defaultConfig.Sentry.Environment)
	v.SetDefault("sentry.release", defaultConfig.Sentry.Release)
	v.SetDefault("metrics.listen", defaultConfig.Metrics.Listen)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		for _, path := range configPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("NATIVECRON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
