package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dbupdater/pkg/logging"
)

const (
	userConfigDir  = ".config/dbupdater"
	configFileName = "config.yaml"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// ConfigFilePath returns the location of config.yaml inside configPath.
func ConfigFilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// LoadConfig loads config.yaml from configPath on top of the defaults.
func LoadConfig(configPath string) (OperatorConfig, error) {
	configFilePath := ConfigFilePath(configPath)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return OperatorConfig{}, NewConfigurationError(configFilePath, ErrorTypeIO, err.Error())
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return OperatorConfig{}, newParseError(configFilePath, err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}
