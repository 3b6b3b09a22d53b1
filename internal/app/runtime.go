package app

import (
	"os"
	"sync"
)

// TestModeEnv set to "1" makes the binaries return before touching
// Postgres or Redis.
const TestModeEnv = "RESORT_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether runtime side effects should be skipped.
func InTestMode() bool { return testMode() }
