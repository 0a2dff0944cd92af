// Package appconf contains app related configurations
package appconf

import (
	"hubrunner/config"
	devconf "hubrunner/config/environments/development"
	prodconf "hubrunner/config/environments/production"
	"os"
	"strconv"
	"strings"
	"time"
)

var appconf config.AppConfiger

func Port() string {
	return appconf.GetPort()
}

func DBURL() string {
	return appconf.GetDBURL()
}

func APIBaseURL() string {
	return appconf.GetAPIBaseURL()
}

func LogLevel() string {
	return appconf.GetLogLevel()
}

// LogFormat is either "text" or "json".
func LogFormat() string {
	if strings.EqualFold(os.Getenv("HR_LOG_FORMAT"), "json") {
		return "json"
	}
	return "text"
}

// DefaultAPIKey is used when a request does not carry its own key.
func DefaultAPIKey() string {
	return os.Getenv("HR_API_KEY")
}

// MaxConcurrent is the number of tasks allowed to run at once, clamped to [1, 20].
func MaxConcurrent() int {
	return intEnv("HR_MAX_CONCURRENT", 3, 1, 20)
}

// UploadConcurrency bounds simultaneous asset uploads, clamped to [1, 10].
func UploadConcurrency() int {
	return intEnv("HR_UPLOAD_CONCURRENCY", 2, 1, 10)
}

// APIRequestsPerSecond throttles calls to the remote API, clamped to [1, 50].
func APIRequestsPerSecond() float64 {
	return float64(intEnv("HR_API_RPS", 5, 1, 50))
}

// PollInterval is the delay between two output queries, clamped to [1s, 1m].
func PollInterval() time.Duration {
	return durationEnv("HR_POLL_INTERVAL", 3*time.Second, time.Second, time.Minute)
}

// TaskTimeout is the hard deadline of a running task, clamped to [1m, 24h].
func TaskTimeout() time.Duration {
	return durationEnv("HR_TASK_TIMEOUT", 60*time.Minute, time.Minute, 24*time.Hour)
}

// PromoteDebounce delays queue promotion after a slot is released, clamped to [0, 10s].
func PromoteDebounce() time.Duration {
	return durationEnv("HR_PROMOTE_DEBOUNCE", 500*time.Millisecond, 0, 10*time.Second)
}

// BatchStagger is the delay between two submissions of a batch, clamped to [0, 5s].
func BatchStagger() time.Duration {
	return durationEnv("HR_BATCH_STAGGER", 100*time.Millisecond, 0, 5*time.Second)
}

// CatalogTTL is how long webapp details stay cached, clamped to [0, 24h].
func CatalogTTL() time.Duration {
	return durationEnv("HR_CATALOG_TTL", 10*time.Minute, 0, 24*time.Hour)
}

func intEnv(key string, def, lo, hi int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}

func durationEnv(key string, def, lo, hi time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}

func init() {
	env := os.Getenv("APP_ENV")

	switch env {
	case "production":
		appconf = prodconf.New()
	case "development":
		appconf = devconf.New()
	default:
		appconf = devconf.New()
	}
}
