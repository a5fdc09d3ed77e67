// Package panics centralizes panic recovery for the daemon entry points, so
// a single goroutine crashing cleanly logs the failure and brings the whole
// process down instead of leaving it in a half-shutdown state.
package panics

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// HandlePanic recovers a panic, logs it along with a stack trace, and exits
// the process. It must be deferred at the top of main() and of every
// goroutine spawned with Go.
func HandlePanic(log *logrus.Entry) {
	err := recover()
	if err == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		log.Errorf("fatal error: %+v", err)
		log.Errorf("stack trace: %s", debug.Stack())
		close(done)
	}()

	const timeout = 5 * time.Second
	select {
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "couldn't log a fatal error in time, exiting anyway")
	case <-done:
	}
	os.Exit(1)
}

// Go runs f in a new goroutine with panic recovery installed, using log to
// report any panic that escapes f.
func Go(log *logrus.Entry, f func()) {
	go func() {
		defer HandlePanic(log)
		f()
	}()
}
