package worker

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return 1, p.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestTokenSweeper_RunsUntilStopped(t *testing.T) {
	purger := &countingPurger{}
	sweeper := NewTokenSweeper(purger, 10*time.Millisecond, quietLogger())

	done := make(chan struct{})
	go func() {
		sweeper.Start()
		close(done)
	}()

	assert.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestTokenSweeper_KeepsGoingAfterErrors(t *testing.T) {
	purger := &countingPurger{err: errors.New("db down")}
	sweeper := NewTokenSweeper(purger, 10*time.Millisecond, quietLogger())
	go sweeper.Start()
	defer sweeper.Stop()

	assert.Eventually(t, func() bool { return purger.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestNewTokenSweeper_DefaultInterval(t *testing.T) {
	sweeper := NewTokenSweeper(&countingPurger{}, 0, nil)
	assert.Equal(t, 10*time.Minute, sweeper.interval)
}
