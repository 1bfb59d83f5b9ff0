/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads topoc settings from a config file, TOPOC_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/chazu/topoc/pkg/source"
	"github.com/chazu/topoc/pkg/validate"
)

// EnvPrefix is the prefix of environment variables read as settings
const EnvPrefix = "TOPOC"

// Setting keys
const (
	KeyCacheDir        = "cache.dir"
	KeyCacheTTL        = "cache.ttl"
	KeyCacheMaxEntries = "cache.maxEntries"
	KeyConcurrency     = "fetch.concurrency"
	KeyNamespace       = "fetch.namespace"
	KeyGitToken        = "git.token"
	KeyGitSSHKey       = "git.sshKey"
	KeyGitPassphrase   = "git.sshPassphrase"
	KeyFormat          = "output.format"
	KeyColor           = "output.color"
	KeyMaxReplicas     = "validate.maxReplicas"
)

// Color modes
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Cache configures the on-disk cache of fetched git documents
type Cache struct {
	Dir        string        `mapstructure:"dir"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"maxEntries"`
}

// Fetch configures document fetching
type Fetch struct {
	// Concurrency bounds parallel overlay fetches
	Concurrency int `mapstructure:"concurrency"`

	// Namespace is used by configmap:// references that name none
	Namespace string `mapstructure:"namespace"`
}

// Git holds clone credentials
type Git struct {
	Token         string `mapstructure:"token"`
	SSHKey        string `mapstructure:"sshKey"`
	SSHPassphrase string `mapstructure:"sshPassphrase"`
}

// Output configures rendering output
type Output struct {
	Format string `mapstructure:"format"`
	Color  string `mapstructure:"color"`
}

// Validate tunes the consistency checks
type Validate struct {
	// MaxReplicas is the replica count above which a warning is reported
	MaxReplicas int32 `mapstructure:"maxReplicas"`
}

// Config holds all topoc settings
type Config struct {
	Cache    Cache    `mapstructure:"cache"`
	Fetch    Fetch    `mapstructure:"fetch"`
	Git      Git      `mapstructure:"git"`
	Output   Output   `mapstructure:"output"`
	Validate Validate `mapstructure:"validate"`

	// File is the config file that was read, if any
	File string `mapstructure:"-"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Cache: Cache{
			Dir:        source.DefaultCacheDir(),
			TTL:        source.DefaultTTL,
			MaxEntries: source.DefaultMaxEntries,
		},
		Fetch: Fetch{
			Concurrency: 4,
			Namespace:   "default",
		},
		Output: Output{
			Format: "yaml",
			Color:  ColorAuto,
		},
		Validate: Validate{
			MaxReplicas: validate.DefaultMaxReplicas,
		},
	}
}

// Load reads settings. An explicit path must exist; otherwise
// $HOME/.topoc/config.yaml is read when present. flags maps setting keys
// to command-line flags that override them when set.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".topoc"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables are seen by Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault(KeyCacheDir, d.Cache.Dir)
	v.SetDefault(KeyCacheTTL, d.Cache.TTL)
	v.SetDefault(KeyCacheMaxEntries, d.Cache.MaxEntries)
	v.SetDefault(KeyConcurrency, d.Fetch.Concurrency)
	v.SetDefault(KeyNamespace, d.Fetch.Namespace)
	v.SetDefault(KeyGitToken, "")
	v.SetDefault(KeyGitSSHKey, "")
	v.SetDefault(KeyGitPassphrase, "")
	v.SetDefault(KeyFormat, d.Output.Format)
	v.SetDefault(KeyColor, d.Output.Color)
	v.SetDefault(KeyMaxReplicas, d.Validate.MaxReplicas)
}

func (c *Config) validate() error {
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", KeyConcurrency, c.Fetch.Concurrency)
	}
	switch c.Output.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%s must be one of auto, always, never; got %q", KeyColor, c.Output.Color)
	}
	return nil
}

// RegistryOptions converts the fetch settings into source registry options
func (c *Config) RegistryOptions() (source.RegistryOptions, error) {
	auth, err := source.GitAuth(c.Git.Token, c.Git.SSHKey, c.Git.SSHPassphrase)
	if err != nil {
		return source.RegistryOptions{}, err
	}
	return source.RegistryOptions{
		CacheDir:        c.Cache.Dir,
		CacheMaxEntries: c.Cache.MaxEntries,
		CacheTTL:        c.Cache.TTL,
		GitAuth:         auth,
		Namespace:       c.Fetch.Namespace,
	}, nil
}
