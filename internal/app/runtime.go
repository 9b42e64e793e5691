package app

import (
	"os"
	"strconv"
)

// TestModeEnv is set by the testing package so binaries imported from tests
// return before opening postgres, redis or a listener.
const TestModeEnv = "BACKOFFICE_TEST_MODE"

// InTestMode reports whether TestModeEnv holds a true value.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
