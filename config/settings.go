package config

import (
	"os"
	"strings"
	"time"
)

// DemoModeDefault is the mode used when a request carries no explicit demo/live signal.
//
// Set via env:
// - DEMO_MODE=true
func DemoModeDefault() bool {
	return boolFromEnv("DEMO_MODE")
}

// CacheRefreshInterval is the background revalidation period of subscribed cache keys.
// Env: CACHE_REFRESH_SECONDS (default 60s)
func CacheRefreshInterval() time.Duration {
	return time.Duration(positiveIntFromEnv("CACHE_REFRESH_SECONDS", 60)) * time.Second
}

// CacheMirrorTTL bounds how long an entry mirrored into redis is served to other instances.
// Env: CACHE_MIRROR_TTL_SECONDS (default 60s)
func CacheMirrorTTL() time.Duration {
	return time.Duration(positiveIntFromEnv("CACHE_MIRROR_TTL_SECONDS", 60)) * time.Second
}

// DataBackend selects the data backend implementation: "mysql" (default) or "memory".
func DataBackend() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DATA_BACKEND")))
	if v == "" {
		return "mysql"
	}
	return v
}

// DashboardLocation is the timezone used to bucket events into days.
// Env: DASHBOARD_TIMEZONE (default UTC)
func DashboardLocation() *time.Location {
	name := strings.TrimSpace(os.Getenv("DASHBOARD_TIMEZONE"))
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logg.WithField("timezone", name).Warn("unknown DASHBOARD_TIMEZONE; using UTC")
		return time.UTC
	}
	return loc
}

// MilestoneHours returns the opening hour and the default closing hour of the timeline axis.
// Env: MILESTONE_OPEN_HOUR (default 8), MILESTONE_CLOSE_HOUR (default 21)
func MilestoneHours() (openHour int, closeHour int) {
	openHour = intFromEnv("MILESTONE_OPEN_HOUR", 8)
	closeHour = intFromEnv("MILESTONE_CLOSE_HOUR", 21)
	if openHour < 0 || openHour > 23 {
		openHour = 8
	}
	if closeHour <= openHour || closeHour > 24 {
		closeHour = 21
	}
	return openHour, closeHour
}

// SearchDebounce is the quiet period before an autocomplete term is fetched.
// Env: SEARCH_DEBOUNCE_MS (default 300ms)
func SearchDebounce() time.Duration {
	return time.Duration(positiveIntFromEnv("SEARCH_DEBOUNCE_MS", 300)) * time.Millisecond
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

func positiveIntFromEnv(key string, def int) int {
	n := intFromEnv(key, def)
	if n <= 0 {
		return def
	}
	return n
}
