package fetch

import (
	"context"
	"log/slog"

	"xdao.co/svs/name"
	"xdao.co/svs/transport"
)

// EventType enumerates the points in a fetch an Observer is told about.
type EventType uint8

const (
	AttemptStarted EventType = iota + 1
	AttemptFailed
	Retrying
	ValidationFailed
	Delivered
	Empty
	Cached
	CacheFailed
	Exhausted
)

func (t EventType) String() string {
	switch t {
	case AttemptStarted:
		return "attempt-started"
	case AttemptFailed:
		return "attempt-failed"
	case Retrying:
		return "retrying"
	case ValidationFailed:
		return "validation-failed"
	case Delivered:
		return "delivered"
	case Empty:
		return "empty"
	case Cached:
		return "cached"
	case CacheFailed:
		return "cache-failed"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Event is one observation. Attempt is 1-based; Remaining is the number of
// attempts still allowed after this one.
type Event struct {
	Type      EventType
	Name      name.Name
	Attempt   int
	Remaining int
	Result    transport.ResultKind
	Kind      Kind
	Bytes     int
	Err       error
}

// Observer receives fetch events synchronously. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Observe(Event) {}

// MultiObserver fans events out in order.
type MultiObserver []Observer

func (m MultiObserver) Observe(e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(e)
		}
	}
}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

// NewLogObserver tags records with component=fetch.
func NewLogObserver(logger *slog.Logger) LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return LogObserver{Logger: logger.With("component", "fetch")}
}

func (o LogObserver) Observe(e Event) {
	if o.Logger == nil {
		return
	}
	level := slog.LevelDebug
	switch e.Type {
	case AttemptFailed, Retrying, ValidationFailed, CacheFailed:
		level = slog.LevelWarn
	case Exhausted:
		level = slog.LevelInfo
	}
	attrs := []slog.Attr{
		slog.String("event", e.Type.String()),
		slog.String("name", e.Name.String()),
		slog.Int("attempt", e.Attempt),
	}
	if e.Type == Retrying || e.Type == AttemptFailed {
		attrs = append(attrs, slog.Int("remaining", e.Remaining))
	}
	if e.Result != 0 {
		attrs = append(attrs, slog.String("result", e.Result.String()))
	}
	if e.Kind != "" {
		attrs = append(attrs, slog.String("kind", string(e.Kind)))
	}
	if e.Bytes > 0 {
		attrs = append(attrs, slog.Int("bytes", e.Bytes))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	o.Logger.LogAttrs(context.Background(), level, "fetch "+e.Type.String(), attrs...)
}
