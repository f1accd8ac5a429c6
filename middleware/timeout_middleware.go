package middleware

import (
	"context"
	"errors"
	"headlink/message"
	"time"
)

var ErrTimeout = errors.New("request timed out")

type result struct {
	reply message.Message
	err   error
}

func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) (message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				reply, err := next(ctx, req)
				done <- result{reply, err}
			}()

			select {
			case r := <-done:
				return r.reply, r.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
