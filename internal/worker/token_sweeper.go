package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpiredTokenPurger deletes expired session tokens
type ExpiredTokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// TokenSweeper periodically removes expired session tokens. Validation
// already rejects expired tokens; the sweep only keeps storage small.
type TokenSweeper struct {
	purger   ExpiredTokenPurger
	interval time.Duration
	log      *logrus.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTokenSweeper creates a new sweeper
func NewTokenSweeper(purger ExpiredTokenPurger, interval time.Duration, log *logrus.Logger) *TokenSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute // Default 10 minute sweep interval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TokenSweeper{
		purger:   purger,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called
func (w *TokenSweeper) Start() {
	w.log.WithField("interval", w.interval).Info("Token sweeper started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stopChan:
			w.log.Info("Token sweeper stopped")
			return
		}
	}
}

// Stop stops the sweep loop
func (w *TokenSweeper) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *TokenSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	n, err := w.purger.PurgeExpired(ctx)
	if err != nil {
		w.log.WithError(err).Warn("Token sweeper: failed to purge expired tokens")
		return
	}
	if n > 0 {
		w.log.WithField("count", n).Info("Token sweeper: purged expired tokens")
	}
}
