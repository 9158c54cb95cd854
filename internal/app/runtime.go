package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv makes both binaries exit before connecting to Postgres or Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	switch os.Getenv(TestModeEnv) {
	case "1", "true", "yes":
		testModeFlag.Store(true)
	default:
		testModeFlag.Store(false)
	}
}

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
