// Package testing switches the process into test mode on import. Handler
// tests import it for its side effect.
package testing

import (
	"os"
	stdtesting "testing"
)

func init() {
	setTestEnv()
}

func setTestEnv() {
	_ = os.Setenv("BACKOFFICE_TEST_MODE", "1")
	if os.Getenv("SESSION_SECRET") == "" {
		_ = os.Setenv("SESSION_SECRET", "test-session-secret")
	}
	if os.Getenv("APP_TIMEZONE") == "" {
		_ = os.Setenv("APP_TIMEZONE", "Asia/Jakarta")
	}
}

func TestMain(m *stdtesting.M) {
	setTestEnv()
	os.Exit(m.Run())
}
