// Package development contains development configuration of the app
package development

import (
	"hubrunner/config"
	"os"
	"strings"
)

type devconf struct{}

func New() config.AppConfiger {
	return devconf{}
}

func (dc devconf) GetPort() string {
	appPort := os.Getenv("HR_APP_PORT")
	if strings.TrimSpace(appPort) == "" {
		appPort = "8080"
	}
	return appPort
}

func (dc devconf) GetDBURL() string {
	dbURL := os.Getenv("HR_DB_URL")
	if strings.TrimSpace(dbURL) == "" {
		dbURL = "file:hubrunner.db"
	}
	return dbURL
}

// GetAPIBaseURL allows pointing the client at a local mock of the remote API.
func (dc devconf) GetAPIBaseURL() string {
	apiURL := os.Getenv("HR_API_BASE_URL")
	if strings.TrimSpace(apiURL) == "" {
		apiURL = "https://www.runninghub.cn"
	}
	return strings.TrimRight(apiURL, "/")
}

func (dc devconf) GetLogLevel() string {
	level := os.Getenv("HR_LOG_LEVEL")
	if strings.TrimSpace(level) == "" {
		level = "debug"
	}
	return level
}
