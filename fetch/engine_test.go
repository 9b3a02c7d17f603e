package fetch

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"xdao.co/svs/keys"
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/security"
	"xdao.co/svs/storage"
	"xdao.co/svs/storage/memstore"
	"xdao.co/svs/transport"
	"xdao.co/svs/transport/local"
)

var (
	group = name.MustParse("/g")
	node  = name.MustParse("/n1")
)

// scriptedClient replays results in order and records every interest.
type scriptedClient struct {
	mu        sync.Mutex
	results   []transport.Result
	interests []packet.Interest
}

func (c *scriptedClient) Express(ctx context.Context, i packet.Interest) transport.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interests = append(c.interests, i)
	if len(c.results) == 0 {
		return transport.TimedOut()
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.interests)
}

type putCall struct {
	name name.Name
	raw  []byte
}

// recordingStore records Puts and optionally fails them.
type recordingStore struct {
	mu   sync.Mutex
	puts []putCall
	err  error
}

func (s *recordingStore) Put(n name.Name, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, putCall{name: n, raw: raw})
	return s.err
}
func (s *recordingStore) Get(name.Name) ([]byte, error) { return nil, storage.ErrNotFound }
func (s *recordingStore) Has(name.Name) bool            { return false }

func rawData(t *testing.T, n name.Name, content string) []byte {
	t.Helper()
	raw, _, err := packet.MakeData(n, []byte(content), packet.MetaInfo{}, keys.DigestSigner{})
	if err != nil {
		t.Fatalf("MakeData: %v", err)
	}
	return raw
}

func newEngine(cacheOthers bool, c transport.Client, s storage.Store) *Engine {
	return &Engine{
		GroupPrefix: group,
		CacheOthers: cacheOthers,
		Client:      c,
		Validator:   security.DigestValidator{},
		Store:       s,
	}
}

func TestEngine_Name(t *testing.T) {
	if got := newEngine(false, nil, nil).Name(node, 5).String(); got != "/g/d/n1/epoch-5" {
		t.Fatalf("cache-others off: %s", got)
	}
	if got := newEngine(true, nil, nil).Name(node, 5).String(); got != "/g/d/epoch-5" {
		t.Fatalf("cache-others on: %s", got)
	}
}

func TestFetch_DeliversAndSendsFreshExactInterest(t *testing.T) {
	e := newEngine(false, nil, nil)
	n := e.Name(node, 7)
	raw := rawData(t, n, "payload")
	c := &scriptedClient{results: []transport.Result{transport.Data(raw)}}
	e.Client = c

	out := e.Fetch(context.Background(), node, 7, 0)
	if !out.Delivered() || string(out.Payload) != "payload" {
		t.Fatalf("expected delivery, got %+v", out)
	}
	if out.Err != nil || out.Attempts != 1 || !out.Name.Equal(n) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if string(out.Raw) != string(raw) || out.Data == nil {
		t.Fatalf("raw packet not reported")
	}

	i := c.interests[0]
	if !i.Name.Equal(n) || !i.MustBeFresh || i.CanBePrefix || i.Lifetime != DefaultTimeout {
		t.Fatalf("unexpected interest %+v", i)
	}
}

func TestFetch_ZeroBudgetMakesExactlyOneAttempt(t *testing.T) {
	c := &scriptedClient{results: []transport.Result{transport.Nacked(transport.NackNoRoute)}}
	out := newEngine(false, c, nil).Fetch(context.Background(), node, 1, 0)
	if out.Delivered() || c.calls() != 1 || out.Attempts != 1 {
		t.Fatalf("calls=%d outcome=%+v", c.calls(), out)
	}
	if !IsKind(out.Err, KindNack) {
		t.Fatalf("err = %v want KindNack", out.Err)
	}
}

func TestFetch_NegativeBudgetMakesNoAttempt(t *testing.T) {
	c := &scriptedClient{}
	out := newEngine(false, c, nil).Fetch(context.Background(), node, 1, -1)
	if out.Delivered() || c.calls() != 0 || out.Attempts != 0 {
		t.Fatalf("calls=%d outcome=%+v", c.calls(), out)
	}
	if out.Kind() != KindNoAttempt {
		t.Fatalf("kind = %q", out.Kind())
	}
}

func TestFetch_RetriesUntilDelivered(t *testing.T) {
	e := newEngine(false, nil, nil)
	raw := rawData(t, e.Name(node, 3), "third time")
	c := &scriptedClient{results: []transport.Result{
		transport.TimedOut(),
		transport.Nacked(transport.NackCongestion),
		transport.Data(raw),
		transport.Data(raw),
	}}
	e.Client = c

	out := e.Fetch(context.Background(), node, 3, 5)
	if !out.Delivered() || out.Attempts != 3 || c.calls() != 3 {
		t.Fatalf("calls=%d outcome=%+v", c.calls(), out)
	}
}

func TestFetch_ExhaustsBudget(t *testing.T) {
	for _, tc := range []struct {
		result transport.Result
		kind   Kind
	}{
		{transport.TimedOut(), KindTimeout},
		{transport.Nacked(transport.NackDuplicate), KindNack},
		{transport.Canceled(nil), KindCanceled},
		{transport.Failed(errors.New("link down")), KindUnclassified},
	} {
		t.Run(string(tc.kind), func(t *testing.T) {
			c := &scriptedClient{results: []transport.Result{tc.result, tc.result, tc.result, tc.result}}
			out := newEngine(false, c, nil).Fetch(context.Background(), node, 9, 2)
			if out.Delivered() || c.calls() != 3 || out.Attempts != 3 {
				t.Fatalf("calls=%d outcome=%+v", c.calls(), out)
			}
			if !IsKind(out.Err, tc.kind) {
				t.Fatalf("err = %v want %s", out.Err, tc.kind)
			}
			if !tc.kind.Retryable() {
				t.Fatalf("%s should be retryable", tc.kind)
			}
		})
	}
}

func TestFetch_UnusableResponsesAreRetried(t *testing.T) {
	e := newEngine(false, nil, nil)
	want := e.Name(node, 4)
	c := &scriptedClient{results: []transport.Result{
		transport.Data([]byte("garbage")),
		transport.Data(rawData(t, e.Name(node, 40), "wrong object")),
		transport.Data(rawData(t, want, "right object")),
	}}
	e.Client = c

	out := e.Fetch(context.Background(), node, 4, 2)
	if !out.Delivered() || string(out.Payload) != "right object" || out.Attempts != 3 {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestFetch_NonCanonicalResponseIsRetriedAndNotCached(t *testing.T) {
	s := &recordingStore{}
	e := newEngine(true, nil, s)
	n := e.Name(node, 9)
	raw := rawData(t, n, "signed once")

	// Same packet with MetaInfo [0, 0] spelled as [0x18 0x00, 0]. The
	// signature still covers the canonical form.
	i := bytes.Index(raw, []byte{0x82, 0x00, 0x00})
	if i < 0 {
		t.Fatalf("zero MetaInfo not found")
	}
	respelled := append(append(append([]byte{}, raw[:i+1]...), 0x18, 0x00), raw[i+2:]...)

	c := &scriptedClient{results: []transport.Result{transport.Data(respelled), transport.Data(raw)}}
	e.Client = c

	out := e.Fetch(context.Background(), node, 9, 1)
	if !out.Delivered() || out.Attempts != 2 || c.calls() != 2 {
		t.Fatalf("calls=%d outcome=%+v", c.calls(), out)
	}
	if !bytes.Equal(out.Raw, raw) {
		t.Fatalf("outcome carries %d bytes, canonical is %d", len(out.Raw), len(raw))
	}
	if len(s.puts) != 1 || !bytes.Equal(s.puts[0].raw, raw) {
		t.Fatalf("cached %d packets, want the canonical one", len(s.puts))
	}

	c = &scriptedClient{results: []transport.Result{transport.Data(respelled)}}
	e.Client = c
	out = e.Fetch(context.Background(), node, 9, 0)
	if out.Delivered() || !IsKind(out.Err, KindUnclassified) {
		t.Fatalf("outcome=%+v", out)
	}
	if !errors.Is(out.Err, packet.ErrNonCanonical) {
		t.Fatalf("cause not preserved: %v", out.Err)
	}
}

func TestFetch_ValidationFailureIsTerminal(t *testing.T) {
	e := newEngine(true, nil, nil)
	n := e.Name(node, 2)
	// Signed with a key the digest validator does not accept.
	signer, err := keys.NewEd25519Signer(make([]byte, 32), node)
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	raw, _, err := packet.MakeData(n, []byte("forged"), packet.MetaInfo{}, signer)
	if err != nil {
		t.Fatalf("MakeData: %v", err)
	}
	c := &scriptedClient{results: []transport.Result{transport.Data(raw), transport.Data(raw)}}
	s := &recordingStore{}
	e.Client = c
	e.Store = s

	out := e.Fetch(context.Background(), node, 2, 5)
	if out.Delivered() || c.calls() != 1 || out.Attempts != 1 {
		t.Fatalf("calls=%d outcome=%+v", c.calls(), out)
	}
	if !IsKind(out.Err, KindValidation) || KindValidation.Retryable() {
		t.Fatalf("err = %v want terminal KindValidation", out.Err)
	}
	if !errors.Is(out.Err, security.ErrRejected) {
		t.Fatalf("validation cause not preserved: %v", out.Err)
	}
	if len(s.puts) != 0 {
		t.Fatalf("rejected packet was cached")
	}
}

func TestFetch_CacheOthersStoresExactlyOnce(t *testing.T) {
	s := &recordingStore{}
	e := newEngine(true, nil, s)
	n := e.Name(node, 5)
	raw := rawData(t, n, "cache me")
	e.Client = &scriptedClient{results: []transport.Result{transport.TimedOut(), transport.Data(raw)}}

	out := e.Fetch(context.Background(), node, 5, 3)
	if !out.Delivered() || out.CacheErr != nil {
		t.Fatalf("outcome=%+v", out)
	}
	if len(s.puts) != 1 {
		t.Fatalf("puts = %d want 1", len(s.puts))
	}
	if !s.puts[0].name.Equal(n) || string(s.puts[0].raw) != string(raw) {
		t.Fatalf("put %s with %d bytes", s.puts[0].name, len(s.puts[0].raw))
	}
	if n.String() != "/g/d/epoch-5" {
		t.Fatalf("cache-others name = %s", n)
	}
}

func TestFetch_NoCacheWhenCacheOthersOff(t *testing.T) {
	s := &recordingStore{}
	e := newEngine(false, nil, s)
	e.Client = &scriptedClient{results: []transport.Result{transport.Data(rawData(t, e.Name(node, 5), "x"))}}

	if out := e.Fetch(context.Background(), node, 5, 0); !out.Delivered() {
		t.Fatalf("outcome=%+v", out)
	}
	if len(s.puts) != 0 {
		t.Fatalf("puts = %d want 0", len(s.puts))
	}
}

func TestFetch_EmptyContentIsAbsentAndNotCached(t *testing.T) {
	s := &recordingStore{}
	e := newEngine(true, nil, s)
	c := &scriptedClient{results: []transport.Result{transport.Data(rawData(t, e.Name(node, 6), "")), transport.Data(rawData(t, e.Name(node, 6), "later"))}}
	e.Client = c

	out := e.Fetch(context.Background(), node, 6, 3)
	if out.Delivered() || out.Payload != nil {
		t.Fatalf("outcome=%+v", out)
	}
	if !IsKind(out.Err, KindEmpty) || c.calls() != 1 {
		t.Fatalf("err=%v calls=%d", out.Err, c.calls())
	}
	if len(s.puts) != 0 {
		t.Fatalf("empty packet was cached")
	}
}

func TestFetch_CacheFailureStillDelivers(t *testing.T) {
	s := &recordingStore{err: errors.New("disk full")}
	e := newEngine(true, nil, s)
	e.Client = &scriptedClient{results: []transport.Result{transport.Data(rawData(t, e.Name(node, 8), "keep me"))}}

	out := e.Fetch(context.Background(), node, 8, 0)
	if !out.Delivered() || out.Err != nil {
		t.Fatalf("outcome=%+v", out)
	}
	if out.CacheErr == nil || !errors.Is(out.CacheErr, s.err) {
		t.Fatalf("CacheErr = %v", out.CacheErr)
	}
}

func TestFetch_PerAttemptTimeout(t *testing.T) {
	var deadlines []time.Duration
	var mu sync.Mutex
	block := transport.ClientFunc(func(ctx context.Context, i packet.Interest) transport.Result {
		if dl, ok := ctx.Deadline(); ok {
			mu.Lock()
			deadlines = append(deadlines, time.Until(dl))
			mu.Unlock()
		}
		<-ctx.Done()
		return transport.FromContext(ctx.Err())
	})
	e := newEngine(false, block, nil)
	e.Timeout = 20 * time.Millisecond

	out := e.Fetch(context.Background(), node, 1, 1)
	if out.Attempts != 2 || !IsKind(out.Err, KindTimeout) {
		t.Fatalf("outcome=%+v", out)
	}
	if len(deadlines) != 2 {
		t.Fatalf("deadline missing on attempts: %v", deadlines)
	}
	for _, d := range deadlines {
		if d > 20*time.Millisecond {
			t.Fatalf("attempt deadline %v exceeds timeout", d)
		}
	}
}

func TestFetch_StopsWhenCallerContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := transport.ClientFunc(func(context.Context, packet.Interest) transport.Result {
		cancel()
		return transport.Canceled(context.Canceled)
	})
	out := newEngine(false, c, nil).Fetch(ctx, node, 1, 10)
	if out.Attempts != 1 || !IsKind(out.Err, KindCanceled) {
		t.Fatalf("outcome=%+v", out)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestFetch_NilClientFails(t *testing.T) {
	out := newEngine(false, nil, nil).Fetch(context.Background(), node, 1, 1)
	if out.Attempts != 2 || !errors.Is(out.Err, transport.ErrNoClient) {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestFetch_ObserverSequence(t *testing.T) {
	s := &recordingStore{}
	e := newEngine(true, nil, s)
	e.Client = &scriptedClient{results: []transport.Result{transport.Nacked(transport.NackNoRoute), transport.Data(rawData(t, e.Name(node, 1), "x"))}}

	var mu sync.Mutex
	var got []EventType
	e.Observer = MultiObserver{NopObserver{}, ObserverFunc(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})}

	e.Fetch(context.Background(), node, 1, 1)
	want := []EventType{AttemptStarted, AttemptFailed, Retrying, AttemptStarted, Delivered, Cached}
	if len(got) != len(want) {
		t.Fatalf("events = %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v want %v", got, want)
		}
	}
}

func TestFetch_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e := newEngine(false, &scriptedClient{}, nil)
	e.Tracer = tp.Tracer("test")
	e.Timeout = time.Millisecond
	e.Fetch(context.Background(), node, 11, 1)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d want 1", len(spans))
	}
	sp := spans[0]
	if sp.Name() != "svs.fetch" {
		t.Fatalf("span name = %q", sp.Name())
	}
	if len(sp.Events()) != 2 {
		t.Fatalf("span events = %d want 2", len(sp.Events()))
	}
	if sp.Status().Description != string(KindTimeout) {
		t.Fatalf("span status = %+v", sp.Status())
	}
}

func TestFetch_SpanRecordsFullSequenceNumber(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	e := newEngine(false, &scriptedClient{}, nil)
	e.Tracer = tp.Tracer("test")
	e.Timeout = time.Millisecond
	e.Fetch(context.Background(), node, math.MaxUint64, 0)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d want 1", len(spans))
	}
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "svs.seq" {
			if got := kv.Value.Emit(); got != "18446744073709551615" {
				t.Fatalf("svs.seq = %s", got)
			}
			return
		}
	}
	t.Fatalf("svs.seq attribute missing")
}

func TestFetch_ConcurrentThroughLocalStore(t *testing.T) {
	origin := memstore.New()
	cache := memstore.New()
	e := &Engine{
		GroupPrefix: group,
		CacheOthers: true,
		Client:      local.New(origin),
		Validator:   security.DigestValidator{},
		Store:       cache,
	}
	for seq := uint64(1); seq <= 16; seq++ {
		n := e.Name(node, seq)
		if err := origin.Put(n, rawData(t, n, "v")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	var wg sync.WaitGroup
	for seq := uint64(1); seq <= 20; seq++ {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(seq uint64) {
				defer wg.Done()
				out := e.Fetch(context.Background(), node, seq, 0)
				if seq <= 16 && (!out.Delivered() || out.CacheErr != nil) {
					t.Errorf("seq %d: %+v", seq, out)
				}
				if seq > 16 && !IsKind(out.Err, KindNack) {
					t.Errorf("seq %d: err=%v want nack", seq, out.Err)
				}
			}(seq)
		}
	}
	wg.Wait()
	if cache.Len() != 16 {
		t.Fatalf("cache holds %d packets want 16", cache.Len())
	}
}
