// Package testing puts importing test binaries into planner test mode and
// offers environment helpers for configuration tests.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("SHIFTPLANNER_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

// configKeys lists every variable read by app.Config.
var configKeys = []string{
	"APP_ENV", "LOG_FORMAT", "LOG_LEVEL", "PG_DSN", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"WORKER_CONCURRENCY", "OPS_ADDR", "GENERATION_LOCK_TTL", "IDEMPOTENCY_RETENTION", "IDEMPOTENCY_CLEANUP_CRON",
}

// SetConfigEnv clears every config variable for the test and applies overrides.
func SetConfigEnv(t stdtesting.TB, overrides map[string]string) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}
}
