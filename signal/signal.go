// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package signal provides a single-shot interrupt listener for the
// apiserver daemon entry point, mirroring the shutdown channel pattern used
// throughout the btcd/kaspad family of daemons.
package signal

import (
	"os"
	"os/signal"
	"sync"
)

var (
	interruptChannel    chan os.Signal
	shutdownRequested   chan struct{}
	once                sync.Once
)

// interruptSignals is the list of signals that cause the listener to close
// the shutdown channel.
var interruptSignals = []os.Signal{os.Interrupt}

// InterruptListener returns a channel that is closed when an interrupt
// signal (SIGINT) is received, or when InterruptListener has already
// been called and a signal previously arrived. A second received signal is
// ignored; callers are expected to shut down promptly on the first.
func InterruptListener() <-chan struct{} {
	once.Do(func() {
		interruptChannel = make(chan os.Signal, 1)
		shutdownRequested = make(chan struct{})
		signal.Notify(interruptChannel, interruptSignals...)

		go func() {
			<-interruptChannel
			close(shutdownRequested)
			signal.Stop(interruptChannel)
		}()
	})

	return shutdownRequested
}
