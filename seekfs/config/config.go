package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/seekfs/seekfs"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Index  IndexConfig  `mapstructure:"index"`
	Search SearchConfig `mapstructure:"search"`
}

// IndexConfig stores enumeration and cache settings.
type IndexConfig struct {
	// Roots are the paths to enumerate. Bare volume roots such as "C:"
	// use the change journal where available.
	Roots      []string `mapstructure:"roots"`
	CachePath  string   `mapstructure:"cachePath"`
	IgnoreFile string   `mapstructure:"ignoreFile"`
}

// SearchConfig stores default query behavior.
type SearchConfig struct {
	CaseSensitive bool `mapstructure:"caseSensitive"`
	PathSearch    bool `mapstructure:"pathSearch"`
	Fuzzy         bool `mapstructure:"fuzzy"`
	MaxResults    int  `mapstructure:"maxResults"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("index.roots", []string{"."})
	viper.SetDefault("index.cachePath", internal.DefaultCacheFile)
	viper.SetDefault("index.ignoreFile", "")
	viper.SetDefault("search.caseSensitive", false)
	viper.SetDefault("search.pathSearch", false)
	viper.SetDefault("search.fuzzy", true)
	viper.SetDefault("search.maxResults", 500)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. index.cachePath becomes INDEX_CACHEPATH

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
