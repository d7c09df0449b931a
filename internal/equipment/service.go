package equipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/itconsole/internal/logging"
	"github.com/kneutral-org/itconsole/internal/metrics"
)

// Event sources reported with published records.
const (
	SourceReport    = "report"
	SourceHeartbeat = "heartbeat"
	SourceSweep     = "sweep"
	SourceEdit      = "edit"
)

// Service applies inventory reports, heartbeats and operator edits to the
// store and publishes the resulting records.
type Service struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new equipment service. A nil notifier disables publishing.
func NewService(store Store, notifier Notifier, logger zerolog.Logger, opts ...ServiceOption) *Service {
	if notifier == nil {
		notifier = NopNotifier()
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "equipment").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report merges an inventory report into the stored record, recomputes its
// estimation and publishes the result.
func (s *Service) Report(ctx context.Context, report *Report) (*Record, error) {
	parts, err := ValidateReport(report)
	if err != nil {
		metrics.RecordReport("invalid")
		return nil, err
	}

	now := s.now()
	merged, err := s.store.Upsert(ctx, report.Name, func(existing *Record) (*Record, error) {
		return MergeReport(existing, report, parts, now), nil
	})
	if err != nil {
		metrics.RecordReport("error")
		return nil, fmt.Errorf("merge report for %q: %w", report.Name, err)
	}

	score := Estimate(merged)
	if err := s.store.SetEstimation(ctx, merged.Name, score); err != nil {
		metrics.RecordReport("error")
		return nil, fmt.Errorf("store estimation for %q: %w", merged.Name, err)
	}
	merged.Estimation = &score
	metrics.RecordEstimation(score)
	metrics.RecordReport("ok")

	logger := logging.DeviceLogger(s.logger, merged.Name)
	logger.Debug().
		Int("components", len(merged.Components)).
		Int("disks", len(merged.Disks)).
		Float64("estimation", score).
		Msg("inventory report merged")

	s.publish(ctx, SourceReport, merged)
	return merged, nil
}

// Heartbeat marks a known device online. Unknown devices are not created.
func (s *Service) Heartbeat(ctx context.Context, hb *Heartbeat) (*Record, error) {
	name, err := ValidateHeartbeat(hb)
	if err != nil {
		metrics.RecordHeartbeat("invalid")
		return nil, err
	}

	record, err := s.store.Touch(ctx, name, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RecordHeartbeat("unknown")
			return nil, err
		}
		metrics.RecordHeartbeat("error")
		return nil, fmt.Errorf("heartbeat for %q: %w", name, err)
	}
	metrics.RecordHeartbeat("ok")
	logger := logging.DeviceLogger(s.logger, name)
	logger.Debug().Msg("heartbeat received")

	s.publish(ctx, SourceHeartbeat, record)
	return record, nil
}

// List returns all records matching the filter.
func (s *Service) List(ctx context.Context, filter *ListFilter) ([]*Record, error) {
	return s.store.List(ctx, filter)
}

// Get returns the record for a device name.
func (s *Service) Get(ctx context.Context, name string) (*Record, error) {
	return s.store.Get(ctx, name)
}

// GetByID returns the record with the given ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Record, error) {
	return s.store.GetByID(ctx, id)
}

// Edit applies an operator edit to the record identified by id, or by name
// when id is empty, and publishes the result.
func (s *Service) Edit(ctx context.Context, id, name string, patch *RecordPatch) (*Record, error) {
	if patch.Empty() || (id == "" && name == "") {
		return nil, ErrInvalidPatch
	}
	if id == "" {
		r, err := s.store.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		id = r.ID
	}

	record, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	logger := logging.DeviceLogger(s.logger, record.Name)
	logger.Info().
		Str("inventoryNumber", record.InventoryNumber).
		Msg("equipment edited")

	s.publish(ctx, SourceEdit, record)
	return record, nil
}

// Delete removes a record by ID.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("id", id).Msg("equipment deleted")
	return nil
}

func (s *Service) publish(ctx context.Context, source string, records ...*Record) {
	if len(records) == 0 {
		return
	}
	s.notifier.Publish(ctx, records)
	metrics.RecordEventsPublished(source, len(records))
}
