// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the settings of the UICC terminal driver.
//
// Settings come from a uicc.yaml (or .toml, .json) file, overridden by
// UICC_ prefixed environment variables, e.g. UICC_TERMINAL_TIMEOUT=5s.
// Every setting has a default, so a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/areese/uicc-terminal/logger"
	"github.com/areese/uicc-terminal/terminal"
)

const (
	configName = "uicc"
	envPrefix  = "UICC"

	// PresenceInitCompleted and PresenceInitializing are the accepted values
	// of terminal.presence.
	PresenceInitCompleted = "init-completed"
	PresenceInitializing  = "initializing-counts"
)

var searchPaths = []string{"/etc/smartcard-service/", "$HOME/.uicc", "./"}

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoConfigFile is returned by Watch when the settings did not come
	// from a file.
	ErrNoConfigFile = errors.New("no configuration file in use")
)

type Config struct {
	Terminal  TerminalConfig
	Telephony TelephonyConfig
	Log       LogConfig

	v *viper.Viper
}

type TerminalConfig struct {
	Name              string
	Timeout           time.Duration
	Presence          string
	TeardownOnRemoval bool `mapstructure:"teardown_on_removal"`
}

type TelephonyConfig struct {
	BusAddress string `mapstructure:"bus_address"`
	Service    string
	Modem      string
}

type LogConfig struct {
	File       string
	Level      string
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool
	Debug      bool
	Quiet      bool
}

func newViper(env bool) *viper.Viper {
	v := viper.New()

	v.SetDefault("terminal.name", terminal.DefaultName)
	v.SetDefault("terminal.timeout", terminal.DefaultTimeout)
	v.SetDefault("terminal.presence", PresenceInitCompleted)
	v.SetDefault("terminal.teardown_on_removal", false)

	v.SetDefault("telephony.bus_address", "")
	v.SetDefault("telephony.service", "")
	v.SetDefault("telephony.modem", "")

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.quiet", false)

	if env {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}

// Default returns the settings used when there is no file and no
// environment override.
func Default() *Config {
	c, err := decode(newViper(false))
	if err != nil {
		// Defaults always decode.
		panic(err)
	}
	return c
}

// Load reads the settings from path. An empty path searches for uicc.* in
// /etc/smartcard-service/, $HOME/.uicc and the working directory, and falls
// back to the defaults when none is found.
func Load(path string) (*Config, error) {
	v := newViper(true)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
	}

	c, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decode(v *viper.Viper) (*Config, error) {
	c := &Config{v: v}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return c, nil
}

// File returns the configuration file in use, or "".
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

func (c *Config) Validate() error {
	switch c.Terminal.Presence {
	case PresenceInitCompleted, PresenceInitializing:
	default:
		return fmt.Errorf("%w: terminal.presence %q, want %q or %q",
			ErrInvalidConfig, c.Terminal.Presence, PresenceInitCompleted, PresenceInitializing)
	}
	if c.Terminal.Timeout < 0 {
		return fmt.Errorf("%w: terminal.timeout %s is negative", ErrInvalidConfig, c.Terminal.Timeout)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("%w: log rotation settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Watch calls fn with the new settings every time the configuration file
// changes. Settings that fail to decode or validate are reported through
// err and not applied.
func (c *Config) Watch(fn func(c *Config, err error)) error {
	if c.File() == "" {
		return ErrNoConfigFile
	}

	v := c.v
	v.OnConfigChange(func(fsnotify.Event) {
		nc, err := decode(v)
		if err == nil {
			err = nc.Validate()
		}
		if err != nil {
			fn(nil, err)
			return
		}
		fn(nc, nil)
	})
	v.WatchConfig()
	return nil
}

func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Terminal.Timeout = d
	return c
}

func (c *Config) WithModem(modem string) *Config {
	c.Telephony.Modem = modem
	return c
}

func (c *Config) WithBusAddress(addr string) *Config {
	c.Telephony.BusAddress = addr
	return c
}

func (c *Config) WithLogFile(file string) *Config {
	c.Log.File = file
	return c
}

func (c *Config) WithDebug(debug bool) *Config {
	c.Log.Debug = debug
	return c
}

// PresencePolicy maps terminal.presence onto the terminal's policy.
func (c *Config) PresencePolicy() terminal.PresencePolicy {
	if c.Terminal.Presence == PresenceInitializing {
		return terminal.PresenceInitializing
	}
	return terminal.PresenceInitCompleted
}

// TerminalOptions returns the options for a terminal built from c.
func (c *Config) TerminalOptions(l logger.LogI) []terminal.Option {
	return []terminal.Option{
		terminal.WithName(c.Terminal.Name),
		terminal.WithTimeout(c.Terminal.Timeout),
		terminal.WithPresencePolicy(c.PresencePolicy()),
		terminal.WithTeardownOnRemoval(c.Terminal.TeardownOnRemoval),
		terminal.WithLogger(l),
	}
}

// TapiConstructor returns the telephony connector for c.
func (c *Config) TapiConstructor() *terminal.DBusTapiConstructor {
	return &terminal.DBusTapiConstructor{
		BusAddress: c.Telephony.BusAddress,
		Service:    c.Telephony.Service,
		Modem:      c.Telephony.Modem,
	}
}

// LoggerConfig returns the logger settings, tagging entries with component.
func (c LogConfig) LoggerConfig(component string) logger.Config {
	return logger.Config{
		File:       c.File,
		Level:      c.Level,
		Debug:      c.Debug,
		Quiet:      c.Quiet,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Component:  component,
	}
}
