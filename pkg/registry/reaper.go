package registry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartReaper removes expired filters every interval until ctx is done.
func StartReaper(ctx context.Context, log *zap.SugaredLogger, r *Registry, interval time.Duration) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if r.cfg.Timeout <= 0 {
		log.Info("filter expiry disabled")
		<-ctx.Done()
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			expired := r.Expire()
			if len(expired) > 0 {
				log.Infow("expired idle filters", "count", len(expired), "live", r.Len(), "timeout", r.cfg.Timeout)
			}
		}
	}
}
