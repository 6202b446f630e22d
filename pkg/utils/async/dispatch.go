package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// Dispatch executes a handler function asynchronously in a new goroutine.
// It detaches from the caller's context lifetime but preserves the logger,
// and absorbs errors and panics so fire-and-forget work can never take the
// caller down.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	bgCtx := logging.With(context.Background(), logging.From(ctx))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.From(bgCtx).Error("panic in async handler", "panic", r)
			}
		}()

		if err := handler(bgCtx); err != nil {
			logging.From(bgCtx).Error("async handler failed", "error", goerr.Unwrap(err))
		}
	}()
}
