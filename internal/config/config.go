// Package config loads membank settings from .membank.yml and the
// environment. Settings are defaults; command-line flags always win.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/zacfermanis/memory-banks/internal/template"
)

// Config holds the project-level membank settings.
type Config struct {
	Template      string
	OutputDir     string
	Strategy      string
	CreateBackups bool
	Compress      bool
	Workers       int
	Variables     map[string]any
}

// Load reads .membank.yml from dir, with MEMBANK_* environment
// variables overriding file values. A missing file is not an error;
// defaults apply.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".membank")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.AutomaticEnv()
	v.SetEnvPrefix("MEMBANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("template", "standard")
	v.SetDefault("outputDir", ".")
	v.SetDefault("createBackups", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	variables, _ := v.Get("variables").(map[string]any)
	cfg := &Config{
		Template:      v.GetString("template"),
		OutputDir:     v.GetString("outputDir"),
		Strategy:      v.GetString("strategy"),
		CreateBackups: v.GetBool("createBackups"),
		Compress:      v.GetBool("compress"),
		Workers:       v.GetInt("workers"),
		Variables:     variables,
	}
	return cfg, nil
}

// Bag converts the config's variables section into a template bag.
func (c *Config) Bag() template.Bag {
	return template.BagFromAny(c.Variables)
}
