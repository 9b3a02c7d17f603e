// Package fetch retrieves one named object from the network with a bounded
// number of attempts, validates it, and optionally caches the raw packet.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/security"
	"xdao.co/svs/storage"
	"xdao.co/svs/transport"
)

// DefaultTimeout bounds each attempt, and is also the Interest lifetime.
const DefaultTimeout = 6000 * time.Millisecond

const tracerName = "xdao.co/svs/fetch"

// Engine fetches objects published under GroupPrefix.
//
// An Engine holds no per-fetch state: one value may serve any number of
// concurrent Fetch calls. CacheOthers is deployment-wide and must agree with
// every other participant; it selects the name layout and enables caching.
type Engine struct {
	GroupPrefix name.Name
	CacheOthers bool

	Client    transport.Client
	Validator security.Validator
	// Store receives validated packets in cache-others mode. Nil disables caching.
	Store storage.Store

	Observer Observer
	Tracer   trace.Tracer
	// Timeout per attempt; zero means DefaultTimeout.
	Timeout time.Duration
}

// Name returns the object name Fetch will request for (nodeID, seq).
func (e *Engine) Name(nodeID name.Name, seq uint64) name.Name {
	return name.DataName(e.GroupPrefix, e.CacheOthers, nodeID, seq)
}

// Fetch requests the object (nodeID, seq), making at most retries+1
// attempts. A negative budget makes no attempt.
//
// Nack, timeout, cancellation and undecodable answers consume one attempt
// each. A validation failure ends the fetch at once. A validated packet with
// empty content is reported as KindEmpty and never cached. Fetch stops early,
// with KindCanceled, once ctx itself is done.
func (e *Engine) Fetch(ctx context.Context, nodeID name.Name, seq uint64, retries int) Outcome {
	n := e.Name(nodeID, seq)
	ctx, span := e.tracer().Start(ctx, "svs.fetch", trace.WithAttributes(
		attribute.String("svs.name", n.String()),
		attribute.String("svs.seq", strconv.FormatUint(seq, 10)),
		attribute.Int("svs.retries", retries),
	))
	defer span.End()

	out := e.fetch(ctx, span, n, retries)

	span.SetAttributes(attribute.Int("svs.attempts", out.Attempts))
	if out.Err != nil {
		span.SetStatus(codes.Error, string(out.Kind()))
	}
	return out
}

func (e *Engine) fetch(ctx context.Context, span trace.Span, n name.Name, retries int) Outcome {
	obs := e.observer()
	client := e.Client
	if client == nil {
		client = transport.ClientFunc(func(context.Context, packet.Interest) transport.Result {
			return transport.Failed(transport.ErrNoClient)
		})
	}
	timeout := e.timeout()

	out := Outcome{Name: n}
	remaining := retries + 1
	if remaining <= 0 {
		out.Err = &Error{Kind: KindNoAttempt, Message: fmt.Sprintf("retry budget %d allows no attempt", retries)}
		obs.Observe(Event{Type: Exhausted, Name: n, Kind: KindNoAttempt, Err: out.Err})
		return out
	}

	var last *Error
	for remaining > 0 {
		remaining--
		out.Attempts++
		attempt := out.Attempts

		obs.Observe(Event{Type: AttemptStarted, Name: n, Attempt: attempt, Remaining: remaining})
		span.AddEvent("attempt", trace.WithAttributes(attribute.Int("svs.attempt", attempt)))

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res := client.Express(attemptCtx, packet.NewInterest(n, true, false, timeout))
		cancel()

		var failure *Error
		switch res.Kind {
		case transport.ResultData:
			d, err := decodeFor(n, res.Raw)
			if err != nil {
				failure = &Error{Kind: KindUnclassified, Message: "unusable response", Cause: err}
				break
			}
			if err := e.validator().Validate(ctx, d); err != nil {
				out.Err = &Error{Kind: KindValidation, Attempts: attempt, Message: "validation failed", Cause: err}
				obs.Observe(Event{Type: ValidationFailed, Name: n, Attempt: attempt, Result: res.Kind, Kind: KindValidation, Err: err})
				return out
			}
			if len(d.Content) == 0 {
				out.Err = &Error{Kind: KindEmpty, Attempts: attempt, Message: "validated packet has no content"}
				obs.Observe(Event{Type: Empty, Name: n, Attempt: attempt, Result: res.Kind, Kind: KindEmpty})
				return out
			}
			out.Payload = d.Content
			out.Data = d
			out.Raw = res.Raw
			obs.Observe(Event{Type: Delivered, Name: n, Attempt: attempt, Result: res.Kind, Bytes: len(d.Content)})
			out.CacheErr = e.cache(n, res.Raw, attempt)
			return out
		case transport.ResultNack:
			failure = &Error{Kind: KindNack, Message: "nacked (" + res.Nack.String() + ")", Cause: res.Err}
		case transport.ResultTimeout:
			failure = &Error{Kind: KindTimeout, Message: "timed out", Cause: res.Err}
		case transport.ResultCanceled:
			failure = &Error{Kind: KindCanceled, Message: "canceled", Cause: res.Err}
		case transport.ResultFailure:
			failure = &Error{Kind: KindUnclassified, Message: "request failed", Cause: res.Err}
		default:
			failure = &Error{Kind: KindUnclassified, Message: fmt.Sprintf("unknown result %s", res.Kind), Cause: res.Err}
		}

		failure.Attempts = attempt
		last = failure
		obs.Observe(Event{Type: AttemptFailed, Name: n, Attempt: attempt, Remaining: remaining, Result: res.Kind, Kind: failure.Kind, Err: failure.Cause})

		if ctxErr := ctx.Err(); ctxErr != nil {
			// Further attempts would fail the same way.
			last = &Error{Kind: KindCanceled, Attempts: attempt, Message: "caller context done", Cause: ctxErr}
			break
		}
		if remaining > 0 {
			obs.Observe(Event{Type: Retrying, Name: n, Attempt: attempt, Remaining: remaining, Kind: failure.Kind})
		}
	}

	out.Err = last
	obs.Observe(Event{Type: Exhausted, Name: n, Attempt: out.Attempts, Kind: last.Kind, Err: last})
	return out
}

// cache writes raw to the store in cache-others mode.
func (e *Engine) cache(n name.Name, raw []byte, attempt int) error {
	if !e.CacheOthers || e.Store == nil {
		return nil
	}
	if err := e.Store.Put(n, raw); err != nil {
		err = fmt.Errorf("fetch: cache %s: %w", n, err)
		e.observer().Observe(Event{Type: CacheFailed, Name: n, Attempt: attempt, Err: err})
		return err
	}
	e.observer().Observe(Event{Type: Cached, Name: n, Attempt: attempt, Bytes: len(raw)})
	return nil
}

var errWrongName = errors.New("response name does not match request")

func decodeFor(n name.Name, raw []byte) (*packet.Data, error) {
	d, err := packet.DecodeData(raw)
	if err != nil {
		return nil, err
	}
	if !d.Name.Equal(n) {
		return nil, fmt.Errorf("%w: got %s", errWrongName, d.Name)
	}
	return d, nil
}

func (e *Engine) observer() Observer {
	if e.Observer == nil {
		return NopObserver{}
	}
	return e.Observer
}

func (e *Engine) validator() security.Validator {
	if e.Validator == nil {
		return security.DefaultOptions().Validator
	}
	return e.Validator
}

func (e *Engine) tracer() trace.Tracer {
	if e.Tracer == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return e.Tracer
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}
