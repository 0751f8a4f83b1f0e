// Package logging defines the structured-logging interface used across the
// project and its slog implementation.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as alternating keys and values:
//
//	log.Info(ctx, "share stored", "share_id", id, "size", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always carries args.
	With(args ...any) Logger
}
