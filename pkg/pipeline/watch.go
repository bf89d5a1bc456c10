package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watch refreshes the board every interval until ctx is done or the board is closed.
// Refresh failures are logged and retried on the next tick.
func (b *Board) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("refresh interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.ctx.Done():
			return ErrBoardClosed
		case <-ticker.C:
			err := b.Refresh(ctx)
			switch {
			case errors.Is(err, ErrBoardClosed):
				return err
			case err != nil:
				b.logger.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}
