package middleware

import (
	"context"
	"headlink/message"
)

// HandlerFunc handles one inbound message. A nil reply means nothing is
// written back.
type HandlerFunc func(ctx context.Context, req message.Message) (message.Message, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one runs outermost:
// Chain(A, B, C)(h) == A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
