package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const configFileEnvVar = "CONFIG_FILE"

type Config interface {
	EnvConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDatabaseURL() string
}

type mainConfig struct {
	EnvVars
	Session
}

// New reads configuration from the environment only.
func New() Config {
	return mainConfig{}
}

// Load reads configuration from the environment, falling back to the YAML
// file named by CONFIG_FILE when it is set. Environment variables win over
// the file and the file wins over defaults.
func Load() (Config, error) {
	path := os.Getenv(configFileEnvVar)
	if path == "" {
		return New(), nil
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit file path. File keys are the lower-case
// variable names, e.g. "session_secret".
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "[config.LoadFile] read %s", path)
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "[config.LoadFile] parse %s", path)
	}
	file := make(fileValues, len(raw))
	for k, v := range raw {
		file[strings.ToLower(k)] = v
	}
	return mainConfig{
		EnvVars: EnvVars{file: file},
		Session: Session{file: file},
	}, nil
}

type fileValues map[string]string

// get returns the environment value, the file value or defaultValue, in that
// order.
func (f fileValues) get(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if value, ok := f[strings.ToLower(envVar)]; ok && value != "" {
		return value
	}
	return defaultValue
}
