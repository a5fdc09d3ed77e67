package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/jeremyandrews/addrindex/logger"
)

var log = logger.Get(logger.SubsystemTags.HTTP)

type contextKey int

const requestContextKey contextKey = 0

// RequestContext carries per-request bookkeeping: the wall-clock time the
// request started, and a debug-message accumulator surfaced in the
// response envelope's "debug" field when the server runs with --debug.
type RequestContext struct {
	Start    time.Time
	DebugOn  bool
	Messages []string
}

// NewRequestContext returns a fresh RequestContext and the context.Context
// it should be attached to.
func NewRequestContext(ctx context.Context, debugOn bool) (context.Context, *RequestContext) {
	rc := &RequestContext{Start: time.Now(), DebugOn: debugOn}
	return context.WithValue(ctx, requestContextKey, rc), rc
}

// FromContext retrieves the RequestContext attached by NewRequestContext,
// or a fresh zero-value one if none is present.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{Start: time.Now()}
}

// Debugf appends a debug message if debug mode is on for this request.
func (rc *RequestContext) Debugf(format string, args ...interface{}) {
	if rc == nil || !rc.DebugOn {
		return
	}
	rc.Messages = append(rc.Messages, fmt.Sprintf(format, args...))
}

// Warnf logs at warn level tagged with the HTTP subsystem.
func (rc *RequestContext) Warnf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}
