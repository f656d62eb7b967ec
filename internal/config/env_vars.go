package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	envVar            = "ENV"
	logLevelEnvVar    = "LOG_LEVEL"
	databaseURLEnvVar = "DATABASE_URL"
)

type EnvVars struct {
	file fileValues
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.file.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.file.get(appNameVar, "Session Claims")
}

func (e EnvVars) GetEnv() string {
	return e.file.get(envVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.file.get(logLevelEnvVar, "info")
}

// GetDatabaseURL returns the Postgres connection string. Empty means the
// in-memory session store is used.
func (e EnvVars) GetDatabaseURL() string {
	return e.file.get(databaseURLEnvVar, "")
}

// GetEnv returns the environment variable or defaultValue when it is unset.
func GetEnv(envVar string, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
