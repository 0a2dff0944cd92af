// Package production contains production configuration of the app
package production

import (
	"hubrunner/config"
	"os"
	"strings"
)

type prodconf struct{}

func New() config.AppConfiger {
	return prodconf{}
}

func (pc prodconf) GetPort() string {
	appPort := os.Getenv("HR_APP_PORT")
	if strings.TrimSpace(appPort) == "" {
		appPort = "8080"
	}
	return appPort
}

func (pc prodconf) GetDBURL() string {
	dbURL := os.Getenv("HR_DB_URL")
	if strings.TrimSpace(dbURL) == "" {
		dbURL = "/var/lib/hubrunner/hubrunner.db"
	}
	return dbURL
}

func (pc prodconf) GetAPIBaseURL() string {
	apiURL := os.Getenv("HR_API_BASE_URL")
	if strings.TrimSpace(apiURL) == "" {
		apiURL = "https://www.runninghub.cn"
	}
	return strings.TrimRight(apiURL, "/")
}

func (pc prodconf) GetLogLevel() string {
	level := os.Getenv("HR_LOG_LEVEL")
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	return level
}
