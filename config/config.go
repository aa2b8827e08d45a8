// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stratastor/logger"
	"gopkg.in/yaml.v3"

	"github.com/tinkershack/drive-revenant/internal/constants"
)

var (
	instance   *Config
	once       sync.Once
	configPath string // Tracks where the config was loaded from
)

// Config is the root configuration for the drive-revenant daemon: ambient
// server/logging/daemon settings, plus the scheduler/IO/policy core's tunables
// from the configuration keys table.
type Config struct {
	Server struct {
		Port      int    `mapstructure:"port"`
		LogLevel  string `mapstructure:"logLevel"`
		Daemonize bool   `mapstructure:"daemonize"`
	} `mapstructure:"server"`

	Logs struct {
		Path      string `mapstructure:"path"`
		Retention string `mapstructure:"retention"`
		Output    string `mapstructure:"output"` // stdout or file
	} `mapstructure:"logs"`

	Logger struct {
		LogLevel     string `mapstructure:"logLevel"`
		EnableSentry bool   `mapstructure:"enableSentry"`
		SentryDSN    string `mapstructure:"sentryDSN"`
	} `mapstructure:"logger"`

	// Scheduler carries every configuration key the core consumes.
	Scheduler struct {
		DefaultIntervalSec   int      `mapstructure:"defaultIntervalSec"`
		IntervalMinSec       int      `mapstructure:"intervalMinSec"`
		JitterSec            float64  `mapstructure:"jitterSec"`
		HDDMaxGapSec         int      `mapstructure:"hddMaxGapSec"`
		DeadlineMarginSec    float64  `mapstructure:"deadlineMarginSec"`
		Fsync                bool     `mapstructure:"fsync"`
		MaxFlushMs           int      `mapstructure:"maxFlushMs"`
		LockRetryMs          int      `mapstructure:"lockRetryMs"`
		ErrorQuarantineAfter int      `mapstructure:"errorQuarantineAfter"`
		ErrorQuarantineSec   int      `mapstructure:"errorQuarantineSec"`
		PolicyPrecedence     []string `mapstructure:"policyPrecedence"`
		TreatUnknownAsSSD    bool     `mapstructure:"treatUnknownAsSsd"`
		IdlePauseMin         int      `mapstructure:"idlePauseMin"`
		InstallID            string   `mapstructure:"installId"`
		PingDirTemplate      string   `mapstructure:"pingDirTemplate"`
		StateFile            string   `mapstructure:"stateFile"`
	} `mapstructure:"scheduler"`

	// Drives is the statically configured fallback drive list, consulted by
	// the config-backed DriveEnumerator when no richer device-enumeration
	// collaborator is wired in (see pkg/revenant/enumerate).
	Drives []DriveEntry `mapstructure:"drives"`

	Development struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"development"`

	Environment string `mapstructure:"environment"`
}

// DriveEntry is one statically declared managed volume.
type DriveEntry struct {
	Letter      string `mapstructure:"letter"`
	Type        string `mapstructure:"type"`
	IntervalSec int    `mapstructure:"intervalSec"`
	PingDir     string `mapstructure:"pingDir"`
}

// LoadConfig loads the configuration with precedence rules: explicit path,
// REVENANT_CONFIG env var, then the system/user default path.
func LoadConfig(configFilePath string) *Config {
	once.Do(func() {
		logConfig := logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
		l, err := logger.NewTag(logConfig, "config")
		if err != nil {
			fmt.Printf("Failed to create logger: %v\n", err)
			os.Exit(1)
		}

		viper.Reset()
		viper.SetConfigType("yaml")

		systemConfigPath := filepath.Join(GetConfigDir(), constants.ConfigFileName)

		if configFilePath != "" {
			configPath = configFilePath
		} else if envPath := os.Getenv("REVENANT_CONFIG"); envPath != "" {
			configPath = envPath
		} else {
			configPath = systemConfigPath
		}

		l.Info("Using config file", "path", configPath)

		if absPath, err := filepath.Abs(configPath); err == nil {
			configPath = absPath
		}

		viper.SetConfigFile(configPath)

		viper.SetDefault("environment", "dev")
		viper.SetDefault("server.port", 8420)
		viper.SetDefault("server.logLevel", "info")
		viper.SetDefault("server.daemonize", false)
		viper.SetDefault("logs.path", "/var/log/drive-revenant/revenant.log")
		viper.SetDefault("logs.retention", "7d")
		viper.SetDefault("logs.output", "stdout")
		viper.SetDefault("logger.logLevel", "info")
		viper.SetDefault("logger.enableSentry", false)
		viper.SetDefault("logger.sentryDSN", "")

		// Scheduler defaults per the configuration keys table.
		viper.SetDefault("scheduler.defaultIntervalSec", 20)
		viper.SetDefault("scheduler.intervalMinSec", 3)
		viper.SetDefault("scheduler.jitterSec", 2.0)
		viper.SetDefault("scheduler.hddMaxGapSec", 45)
		viper.SetDefault("scheduler.deadlineMarginSec", 0.3)
		viper.SetDefault("scheduler.fsync", true)
		viper.SetDefault("scheduler.maxFlushMs", 150)
		viper.SetDefault("scheduler.lockRetryMs", 750)
		viper.SetDefault("scheduler.errorQuarantineAfter", 5)
		viper.SetDefault("scheduler.errorQuarantineSec", 60)
		viper.SetDefault("scheduler.policyPrecedence", []string{"global", "battery", "idle", "per_drive_disable"})
		viper.SetDefault("scheduler.treatUnknownAsSsd", true)
		viper.SetDefault("scheduler.idlePauseMin", 0)
		viper.SetDefault("scheduler.installId", uuid.NewString())
		viper.SetDefault("scheduler.pingDirTemplate", `{letter}:\.drive_revenant\`)
		viper.SetDefault("scheduler.stateFile", constants.StateFileName)

		viper.SetDefault("development.enabled", false)

		viper.AutomaticEnv()
		viper.SetEnvPrefix("REVENANT")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		err = viper.ReadInConfig()

		if err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				l.Info("Config file not found, creating default at system path", "path", systemConfigPath)

				if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
					l.Error("Failed to create config directory", "err", err)
				}

				var cfg Config
				if err := viper.UnmarshalExact(&cfg); err != nil {
					l.Error("Failed to unmarshal default configuration", "err", err)
				}

				instance = &cfg
				configPath = systemConfigPath

				if err := SaveConfig(systemConfigPath); err != nil {
					l.Error("Failed to save default configuration", "err", err)
				}
			} else {
				l.Error("Error reading config file", "err", err)

				var cfg Config
				if err := viper.UnmarshalExact(&cfg); err != nil {
					l.Error("Failed to unmarshal default configuration", "err", err)
				}

				instance = &cfg
			}
		} else {
			l.Info("Config file loaded successfully", "path", viper.ConfigFileUsed())
			configPath = viper.ConfigFileUsed()

			var cfg Config
			if err := viper.UnmarshalExact(&cfg); err != nil {
				l.Error("Failed to parse configuration", "err", err)
			} else {
				instance = &cfg
			}
		}

		l.Debug("Loaded configuration", "config", fmt.Sprintf("%+v", *instance))
	})

	return instance
}

// SaveConfig persists the current configuration to a specified path.
func SaveConfig(path string) error {
	if path == "" {
		if os.Geteuid() == 0 {
			if err := os.MkdirAll(GetConfigDir(), 0755); err != nil {
				return fmt.Errorf("failed to create system config directory: %w", err)
			}
			path = filepath.Join(GetConfigDir(), constants.ConfigFileName)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			userConfigDir := filepath.Join(home, ".drive-revenant")
			if err := os.MkdirAll(userConfigDir, 0755); err != nil {
				return fmt.Errorf("failed to create user config directory: %w", err)
			}
			path = filepath.Join(userConfigDir, constants.ConfigFileName)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configYAML, err := yaml.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if err := os.WriteFile(path, configYAML, 0644); err != nil {
		return fmt.Errorf("failed to write configuration to file: %w", err)
	}

	configPath = path

	return nil
}

// GetLoadedConfigPath returns the path of the currently loaded configuration file.
func GetLoadedConfigPath() string {
	return configPath
}

// GetConfig returns the current configuration instance, loading defaults if
// nothing has been loaded yet.
func GetConfig() *Config {
	if instance == nil {
		return LoadConfig("")
	}
	return instance
}

func NewLoggerConfig(cfg *Config) logger.Config {
	if cfg == nil {
		return logger.Config{
			LogLevel:     "info",
			EnableSentry: false,
			SentryDSN:    "",
		}
	}

	return logger.Config{
		LogLevel:     cfg.Logger.LogLevel,
		EnableSentry: cfg.Logger.EnableSentry,
		SentryDSN:    cfg.Logger.SentryDSN,
	}
}
