package rpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Handler produces the result of a transaction.
type Handler func(ctx context.Context, tx *Transaction) (any, error)

// Interceptor wraps the handler of every call. Interceptors are applied in
// registration order, each one wrapping the previous.
type Interceptor func(next Handler) Handler

// RequestHook observes every batch right before it is sent.
type RequestHook func(batch []*Transaction)

// LogCalls logs the outcome and duration of every call.
func LogCalls(logger zerolog.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, tx *Transaction) (any, error) {
			start := time.Now()
			result, err := next(ctx, tx)

			ev := logger.Debug()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev.Uint64("id", tx.ID).
				Str("method", tx.Method).
				Str("state", tx.State().String()).
				Dur("duration", time.Since(start)).
				Msg("rpc call")
			return result, err
		}
	}
}
