// Package guard switches binaries into test mode when imported from a test.
package guard

import "os"

func init() {
	if os.Getenv("FLEETDASH_TEST_MODE") == "" {
		_ = os.Setenv("FLEETDASH_TEST_MODE", "1")
	}
}
