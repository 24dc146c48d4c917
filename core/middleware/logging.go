package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/miladsoleymani/dlqmux/core"
)

// Logging returns middleware that logs handler duration and errors.
// Successful runs are logged at debug level, failures at error level.
func Logging(logger *zap.Logger) core.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, msg core.Message) error {
			start := time.Now()
			err := next(ctx, msg)
			fields := []zap.Field{
				zap.String("topic", msg.Topic()),
				zap.ByteString("key", msg.Key()),
				zap.Duration("elapsed", time.Since(start)),
			}

			if err != nil {
				logger.Error("handler error", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("handler ok", fields...)
			}
			return err
		}
	}
}
