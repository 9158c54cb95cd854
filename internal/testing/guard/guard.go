// Package guard switches the binaries into test mode when imported for side
// effects, so calling main from a test never dials Postgres or Redis.
package guard

import "os"

func init() {
	if os.Getenv("ODYSSEY_TEST_MODE") == "" {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
	}
}
