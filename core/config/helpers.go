package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the settings operators are allowed to inspect.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_debug":                    Global.App.Debug,
		"app_version":                  Global.App.Version,
		"scheduler_interval":           Global.Scheduler.Interval.String(),
		"scheduler_heartbeat_interval": Global.Scheduler.HeartbeatInterval.String(),
		"scheduler_stale_after":        Global.Scheduler.StaleAfter.String(),
		"scheduler_embedded":           Global.Scheduler.Embedded,
		"scheduler_timezone":           Global.Scheduler.Timezone,
		"whatsapp_driver":              Global.Whatsapp.Driver,
		"sms_configured":               Global.SMS.APIKey != "",
		"amqp_enabled":                 Global.AMQP.URL != "",
		"valkey_enabled":               Global.Database.ValkeyEnabled,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare milliseconds ("60000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
