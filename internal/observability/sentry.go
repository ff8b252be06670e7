package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

type SentryConfig struct {
	DSN         string
	Environment string
	// BeforeSend can drop or rewrite events; tests use it to capture them.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// InitSentry configures the global hub. It reports false and does nothing
// when no DSN is set.
func InitSentry(cfg SentryConfig) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
		BeforeSend:       cfg.BeforeSend,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports err on the request's hub when one is attached to ctx,
// otherwise on the global hub.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}
