package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/MKhiriev/go-pos-sync/internal/config"
)

// ConfigureSentry initialises the global Sentry client. It is a no-op when
// cfg.SentryDSN is empty. The returned function flushes buffered events.
func ConfigureSentry(cfg config.Telemetry, environment, release string) (func(), error) {
	if cfg.SentryDSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: environment,
		Release:     release,
		ServerName:  cfg.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// HubFromContext returns the hub attached to ctx, falling back to the
// current hub. It never returns nil.
func HubFromContext(ctx context.Context) *sentry.Hub {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return hub
}

// CaptureError reports err with tags to the hub of ctx.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := HubFromContext(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
