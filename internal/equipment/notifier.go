package equipment

import (
	"context"
)

// Notifier pushes changed records to live viewers. Delivery is best-effort;
// implementations must not block the caller on slow subscribers.
type Notifier interface {
	Publish(ctx context.Context, records []*Record)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, records []*Record)

// Publish calls f.
func (f NotifierFunc) Publish(ctx context.Context, records []*Record) {
	f(ctx, records)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, []*Record) {}

// NopNotifier returns a Notifier that discards everything.
func NopNotifier() Notifier { return nopNotifier{} }
