package middleware

import (
	"context"
	"errors"
	"headlink/message"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware drops messages beyond a token bucket of r per second
// with the given burst. The limiter is shared by every connection the
// handler serves.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Message) (message.Message, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
