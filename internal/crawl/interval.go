package crawl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
)

// RunEvery invokes fn immediately and then once per interval until the
// context ends. A non-positive interval runs fn once and returns its
// error; in interval mode cycle errors are logged and the next cycle
// still runs.
func RunEvery(ctx context.Context, clk clock.Clock, interval time.Duration, log *zap.Logger, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if interval <= 0 {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("crawl cycle failed", zap.Error(err))
		}
		log.Info("next crawl cycle scheduled", zap.Duration("in", interval))
		if err := clk.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
