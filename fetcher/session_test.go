package fetcher

import (
	"errors"
	"testing"
)

func TestWaitProxyAuth_TeardownErrorDoesNotPanic(t *testing.T) {
	// Sessions with a credentialed proxy are routinely released before any
	// auth challenge arrives; the handler then errors on the dead
	// connection. That error is logged, never propagated.
	waitProxyAuth(func() error {
		return errors.New("context canceled")
	})

	waitProxyAuth(func() error { return nil })
}
