// Package transport defines how the fetch engine talks to the network: a
// Client expresses one Interest and reports exactly one Result.
package transport

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/svs/packet"
)

var ErrNoClient = errors.New("transport: no client configured")

// Client sends an Interest and waits for its answer.
//
// Implementations MUST NOT panic on network faults and MUST honor ctx:
// expiry of ctx's deadline is reported as ResultTimeout, cancellation as
// ResultCanceled.
type Client interface {
	Express(ctx context.Context, interest packet.Interest) Result
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, interest packet.Interest) Result

func (f ClientFunc) Express(ctx context.Context, interest packet.Interest) Result {
	return f(ctx, interest)
}

// ResultKind is the closed set of attempt results.
type ResultKind uint8

const (
	ResultData ResultKind = iota + 1
	ResultNack
	ResultTimeout
	ResultCanceled
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultData:
		return "data"
	case ResultNack:
		return "nack"
	case ResultTimeout:
		return "timeout"
	case ResultCanceled:
		return "canceled"
	case ResultFailure:
		return "failure"
	default:
		return fmt.Sprintf("ResultKind(%d)", uint8(k))
	}
}

// NackReason is the reason a forwarder gave for a negative acknowledgement.
type NackReason uint16

const (
	NackNone       NackReason = 0
	NackCongestion NackReason = 50
	NackDuplicate  NackReason = 100
	NackNoRoute    NackReason = 150
)

func (r NackReason) String() string {
	switch r {
	case NackNone:
		return "none"
	case NackCongestion:
		return "congestion"
	case NackDuplicate:
		return "duplicate"
	case NackNoRoute:
		return "no-route"
	default:
		return fmt.Sprintf("NackReason(%d)", uint16(r))
	}
}

// Result is the outcome of one Express call. Raw is set only for ResultData,
// Nack only for ResultNack; Err may carry detail for any non-data kind.
type Result struct {
	Kind ResultKind
	Raw  []byte
	Nack NackReason
	Err  error
}

func Data(raw []byte) Result { return Result{Kind: ResultData, Raw: raw} }

func Nacked(reason NackReason) Result {
	return Result{Kind: ResultNack, Nack: reason, Err: fmt.Errorf("nack: %s", reason)}
}

func TimedOut() Result { return Result{Kind: ResultTimeout, Err: context.DeadlineExceeded} }

func Canceled(err error) Result {
	if err == nil {
		err = context.Canceled
	}
	return Result{Kind: ResultCanceled, Err: err}
}

func Failed(err error) Result {
	if err == nil {
		err = errors.New("transport: unknown failure")
	}
	return Result{Kind: ResultFailure, Err: err}
}

// FromContext classifies a context error into a Result. It returns a failure
// for errors that are neither cancellation nor deadline expiry.
func FromContext(err error) Result {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOut()
	case errors.Is(err, context.Canceled):
		return Canceled(err)
	default:
		return Failed(err)
	}
}
