package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFromContext(t *testing.T) {
	cases := []struct {
		err  error
		want ResultKind
	}{
		{context.DeadlineExceeded, ResultTimeout},
		{fmt.Errorf("rpc: %w", context.DeadlineExceeded), ResultTimeout},
		{context.Canceled, ResultCanceled},
		{errors.New("boom"), ResultFailure},
	}
	for _, tc := range cases {
		if got := FromContext(tc.err); got.Kind != tc.want {
			t.Fatalf("FromContext(%v) = %s want %s", tc.err, got.Kind, tc.want)
		}
	}
}

func TestConstructors(t *testing.T) {
	if r := Data([]byte("x")); r.Kind != ResultData || string(r.Raw) != "x" || r.Err != nil {
		t.Fatalf("Data: %+v", r)
	}
	if r := Nacked(NackNoRoute); r.Kind != ResultNack || r.Nack != NackNoRoute || r.Err == nil {
		t.Fatalf("Nacked: %+v", r)
	}
	if r := Canceled(nil); !errors.Is(r.Err, context.Canceled) {
		t.Fatalf("Canceled(nil) err = %v", r.Err)
	}
	if r := Failed(nil); r.Kind != ResultFailure || r.Err == nil {
		t.Fatalf("Failed(nil): %+v", r)
	}
	if got := ResultKind(42).String(); got != "ResultKind(42)" {
		t.Fatalf("String = %q", got)
	}
	if got := NackCongestion.String(); got != "congestion" {
		t.Fatalf("String = %q", got)
	}
}
