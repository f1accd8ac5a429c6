package middleware

import (
	"context"
	"headlink/message"
	"time"

	"github.com/rs/zerolog"
)

func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) (message.Message, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			ev := logger.Debug()
			if err != nil {
				ev = logger.Warn().Err(err)
			}
			ev = ev.Stringer("type", req.Type()).Dur("duration", time.Since(start))
			if reply != nil {
				ev = ev.Stringer("reply", reply.Type())
			}
			ev.Msg("handled message")
			return reply, err
		}
	}
}
