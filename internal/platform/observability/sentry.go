package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hogtech/orderflow/internal/platform/requestctx"
)

const sentryFlushTimeout = 2 * time.Second

// SentryOptions configures error reporting.
type SentryOptions struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// InitSentry initialises the global Sentry client. It returns a flush function that should run
// before the process exits. An empty DSN disables reporting and returns a no-op flush.
func InitSentry(opts SentryOptions) (func(), error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return func() {}, nil
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: opts.Environment,
		Release:     opts.Release,
		SampleRate:  sampleRate,
	}); err != nil {
		return func() {}, fmt.Errorf("observability: init sentry: %w", err)
	}
	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}

func reportPanic(ctx context.Context, r *http.Request, recovered any) {
	hub := sentry.CurrentHub()
	if hub == nil || hub.Client() == nil {
		return
	}
	hub = hub.Clone()
	hub.Scope().SetRequest(r)
	if info, ok := requestctx.Trace(ctx); ok && info.TraceID != "" {
		hub.Scope().SetTag("trace_id", info.TraceID)
	}
	hub.Recover(recovered)
}
