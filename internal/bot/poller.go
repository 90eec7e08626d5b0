package bot

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Poller fetches updates with getUpdates instead of a webhook. Used when the
// service is not reachable from Telegram, e.g. in development.
type Poller struct {
	api     API
	router  *Router
	timeout time.Duration
	backoff time.Duration
	lg      *zap.Logger
}

// NewPoller returns a Poller that long-polls for up to timeout per request.
func NewPoller(api API, router *Router, timeout time.Duration, lg *zap.Logger) *Poller {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Poller{
		api:     api,
		router:  router,
		timeout: timeout,
		backoff: 3 * time.Second,
		lg:      lg,
	}
}

// Run removes any webhook and polls until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.api.DeleteWebhook(ctx); err != nil {
		return errors.Wrap(err, "delete webhook")
	}
	p.lg.Info("Polling for updates", zap.Duration("timeout", p.timeout))

	var offset int64
	for {
		updates, err := p.api.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.lg.Warn("Get updates", zap.Error(err), zap.Duration("retry_in", p.backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, u := range updates {
			if err := p.router.HandleUpdate(ctx, u); err != nil {
				p.lg.Error("Process update", zap.Int64("update_id", u.UpdateID), zap.Error(err))
			}
			offset = u.UpdateID + 1
		}
	}
}
