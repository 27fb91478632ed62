// Package qlog carries a [slog.Logger] through a [context.Context], for
// the edges of the runtime (cmd/quill, transport setup) that log with
// log/slog rather than the per-connection zerolog.Logger used inside
// pkg/rpcconn.
package qlog

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

type ctxKey struct{}

var key = ctxKey{}

// InContext returns a copy of ctx carrying l.
func InContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, key, l)
}

// FromContext returns the logger attached to ctx, or slog.Default() if
// none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(key).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// FatalError logs msg and err at error level and exits the process with
// status 1. It is meant for cmd/quill's startup path, where there is no
// connection yet to recover gracefully.
func FatalError(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])

	r := slog.NewRecord(time.Now(), slog.LevelError, msg, pcs[0])
	if err != nil {
		r.AddAttrs(slog.Any("error", err))
	}
	r.AddAttrs(attrs...)

	_ = FromContext(ctx).Handler().Handle(ctx, r)
	os.Exit(1)
}
