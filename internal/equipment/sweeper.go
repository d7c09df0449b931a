package equipment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/itconsole/internal/metrics"
)

// OfflineMarker is the part of Store the sweeper needs.
type OfflineMarker interface {
	MarkOffline(ctx context.Context, cutoff time.Time) ([]*Record, error)
}

// Sweeper periodically marks devices offline when no report or heartbeat
// arrived within the timeout window, and publishes the flipped records.
type Sweeper struct {
	store    OfflineMarker
	notifier Notifier
	timeout  time.Duration
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperClock overrides the time source.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a sweeper that runs every interval and demotes records
// older than timeout.
func NewSweeper(store OfflineMarker, notifier Notifier, timeout, interval time.Duration, logger zerolog.Logger, opts ...SweeperOption) *Sweeper {
	if notifier == nil {
		notifier = NopNotifier()
	}
	s := &Sweeper{
		store:    store,
		notifier: notifier,
		timeout:  timeout,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins sweeping in a background goroutine. Calling Start on a
// running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(s.stopCh, s.doneCh)

	s.logger.Info().
		Dur("timeout", s.timeout).
		Dur("interval", s.interval).
		Msg("liveness sweeper started")
}

// Stop signals the sweeper to stop and waits for the current tick to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (s *Sweeper) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			s.logger.Info().Msg("liveness sweeper stopped")
			return
		case <-ticker.C:
			s.runTick()
		}
	}
}

func (s *Sweeper) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout())
	defer cancel()

	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error().Err(err).Msg("liveness sweep failed")
	}
}

// tickTimeout bounds one sweep to the interval, but never below a second.
func (s *Sweeper) tickTimeout() time.Duration {
	if s.interval < time.Second {
		return time.Second
	}
	return s.interval
}

// Tick runs one sweep: every online record last updated more than timeout
// ago is flipped offline and the flipped set is published. It is safe to call
// concurrently with the background loop and to call redundantly.
func (s *Sweeper) Tick(ctx context.Context) ([]*Record, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.timeout)

	flipped, err := s.store.MarkOffline(ctx, cutoff)
	metrics.RecordSweep(err, len(flipped), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if len(flipped) > 0 {
		names := make([]string, 0, len(flipped))
		for _, r := range flipped {
			names = append(names, r.Name)
		}
		s.logger.Info().
			Int("count", len(flipped)).
			Strs("devices", names).
			Msg("devices marked offline")

		s.notifier.Publish(ctx, flipped)
		metrics.RecordEventsPublished(SourceSweep, len(flipped))
	}
	return flipped, nil
}
