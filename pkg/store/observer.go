package store

import (
	"context"
	"time"
)

// Outcome is the result of one Update call.
type Outcome uint8

const (
	// OutcomeCommitted means the value changed and listeners were notified.
	OutcomeCommitted Outcome = iota + 1

	// OutcomeSkipped means the equality check found a no-op.
	OutcomeSkipped

	// OutcomeFailed means the descriptor failed and nothing was committed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UpdateEvent describes one finished Update call.
type UpdateEvent struct {
	Slice    string
	Kind     string
	Mode     EqualityMode
	Outcome  Outcome
	Start    time.Time
	Duration time.Duration

	// Listeners is the number of listeners notified; zero unless committed.
	Listeners int

	// Err is the descriptor or listener failure, if any. A listener failure
	// comes with OutcomeCommitted.
	Err error
}

// Observer receives store instrumentation events. Implementations must be
// safe for concurrent use and must not write to the store.
type Observer interface {
	// ObserveUpdate is called once per Update after listeners have run.
	ObserveUpdate(ctx context.Context, ev UpdateEvent)

	// ObserveSubscribers is called with +1 or -1 when a listener is added
	// to or removed from a slice.
	ObserveSubscribers(slice string, delta int)
}

// Observers fans events out to several observers.
func Observers(obs ...Observer) Observer {
	list := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) ObserveUpdate(ctx context.Context, ev UpdateEvent) {
	for _, o := range m {
		o.ObserveUpdate(ctx, ev)
	}
}

func (m multiObserver) ObserveSubscribers(slice string, delta int) {
	for _, o := range m {
		o.ObserveSubscribers(slice, delta)
	}
}

type nopObserver struct{}

func (nopObserver) ObserveUpdate(context.Context, UpdateEvent) {}
func (nopObserver) ObserveSubscribers(string, int)            {}
