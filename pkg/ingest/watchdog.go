package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartStallWatchdog warns every interval while no block has been appended
// for longer than maxIdle, and reports a halted ingestor.
func StartStallWatchdog(ctx context.Context, log *zap.SugaredLogger, ing *Ingestor, interval, maxIdle time.Duration) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := ing.Err(); err != nil {
				log.Errorw("ingestion halted", "error", err)
				continue
			}
			last := ing.LastAppend()
			if idle := time.Since(last); idle > maxIdle {
				log.Warnw("ingestion stalled", "idle", idle, "lastAppend", last)
			}
		}
	}
}
