// Package poller drives a discovery session to completion from the client
// side by repeatedly calling its poll endpoint with an adaptive delay.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
)

var (
	ErrTimeout        = errors.New("polling timed out")
	ErrTooManyErrors  = errors.New("too many consecutive poll errors")
	ErrPermanentError = errors.New("poll rejected")
)

// Fetcher advances a session by one poll and returns the resulting snapshot.
type Fetcher interface {
	Advance(ctx context.Context, sessionID string) (*model.Snapshot, error)
}

type Config struct {
	Short       time.Duration
	Medium      time.Duration
	Long        time.Duration
	MaxDuration time.Duration
	MaxErrors   int

	// Hidden reports whether nobody is watching; polling then slows to Long.
	Hidden     func() bool
	OnUpdate   func(*model.Snapshot)
	OnComplete func(*model.Snapshot)
}

func DefaultConfig() Config {
	return Config{
		Short:       2 * time.Second,
		Medium:      5 * time.Second,
		Long:        15 * time.Second,
		MaxDuration: 30 * time.Minute,
		MaxErrors:   5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Short <= 0 {
		c.Short = d.Short
	}
	if c.Medium <= 0 {
		c.Medium = d.Medium
	}
	if c.Long <= 0 {
		c.Long = d.Long
	}
	return c
}

// Poller runs the polling loop for one session. OnComplete fires at most
// once for the lifetime of the Poller.
type Poller struct {
	fetcher  Fetcher
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
	complete sync.Once
}

type Option func(*Poller)

// WithTimer replaces the wall clock and the delay timer.
func WithTimer(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(p *Poller) {
		p.now = now
		p.after = after
	}
}

func New(fetcher Fetcher, cfg Config, logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
		after:   time.After,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextDelay picks the wait before the next poll.
func NextDelay(snap *model.Snapshot, hidden bool, cfg Config) time.Duration {
	cfg = cfg.withDefaults()
	switch {
	case hidden:
		return cfg.Long
	case snap.HasActiveJobs():
		return cfg.Short
	case snap.Progress < 50:
		return cfg.Medium
	default:
		return cfg.Long
	}
}

// Run polls until the session settles, the context ends, MaxDuration
// elapses or MaxErrors consecutive polls fail. It returns the last snapshot
// it saw along with any error.
func (p *Poller) Run(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	start := p.now()
	var last *model.Snapshot
	failures := 0

	for attempt := 1; ; attempt++ {
		snap, err := p.fetcher.Advance(ctx, sessionID)
		var delay time.Duration
		switch {
		case err != nil && ctx.Err() != nil:
			return last, ctx.Err()
		case err != nil:
			if errors.Is(err, ErrPermanentError) {
				return last, err
			}
			failures++
			p.logger.Warn("Poll failed",
				zap.String("sessionId", sessionID),
				zap.Int("attempt", attempt),
				zap.Int("consecutiveFailures", failures),
				zap.Error(err),
			)
			if p.cfg.MaxErrors > 0 && failures >= p.cfg.MaxErrors {
				return last, fmt.Errorf("%w: %v", ErrTooManyErrors, err)
			}
			delay = p.cfg.Long
		default:
			failures = 0
			last = snap
			if p.cfg.OnUpdate != nil {
				p.cfg.OnUpdate(snap)
			}
			if snap.Settled() {
				p.complete.Do(func() {
					if p.cfg.OnComplete != nil {
						p.cfg.OnComplete(snap)
					}
				})
				return snap, nil
			}
			delay = NextDelay(snap, p.cfg.Hidden != nil && p.cfg.Hidden(), p.cfg)
		}

		if p.cfg.MaxDuration > 0 && p.now().Sub(start)+delay > p.cfg.MaxDuration {
			return last, fmt.Errorf("%w after %v", ErrTimeout, p.cfg.MaxDuration)
		}
		p.logger.Debug("Next poll scheduled", zap.String("sessionId", sessionID), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-p.after(delay):
		}
	}
}
