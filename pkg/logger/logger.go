package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New returns the service-wide structured logger. Every line carries the
// service name so dialer logs are separable from the other platform
// services sharing a log sink.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "dialer-api", "env", appEnv)
}

// ForJob scopes a logger to one queue job, so a job's dispatch, reaping and
// outcome lines grep as a single stream.
func ForJob(l *slog.Logger, tenantID, jobID string) *slog.Logger {
	return l.With("tenant_id", tenantID, "job_id", jobID)
}

// ForCampaign scopes a logger to one campaign.
func ForCampaign(l *slog.Logger, tenantID, campaignID string) *slog.Logger {
	return l.With("tenant_id", tenantID, "campaign_id", campaignID)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ShutdownFlush is a placeholder for future log flushing (if a buffered logger is used).
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
