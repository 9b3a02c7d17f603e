// Package svs composes a state-vector sync core with the fetch engine for a
// group whose members share one data namespace.
package svs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"xdao.co/svs/fetch"
	"xdao.co/svs/name"
	"xdao.co/svs/packet"
	"xdao.co/svs/security"
	"xdao.co/svs/storage"
	"xdao.co/svs/storage/memstore"
	"xdao.co/svs/transport"
)

// Name is re-exported for callers that only deal with this package.
type Name = name.Name

const DefaultParallelism = 4

var (
	ErrNoGroupPrefix = errors.New("svs: group prefix is required")
	ErrNoNodeID      = errors.New("svs: node id is required")
	ErrNoCore        = errors.New("svs: sync core is required")
)

// Config wires a Shared instance. Every collaborator is explicit.
type Config struct {
	GroupPrefix Name
	NodeID      Name
	// CacheOthers selects the shared namespace and caching of fetched
	// packets. It must match across the whole group and is fixed for the
	// lifetime of a Shared.
	CacheOthers bool

	Core     Core
	Client   transport.Client
	Security security.Options
	// Store holds published packets and, in cache-others mode, fetched ones.
	// Nil uses an in-memory store.
	Store storage.Store

	// Freshness is written into published packets.
	Freshness time.Duration
	// Timeout per fetch attempt; zero uses fetch.DefaultTimeout.
	Timeout time.Duration
	// Parallelism bounds FetchMissing; zero uses DefaultParallelism.
	Parallelism int

	Observer fetch.Observer
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Shared publishes local objects and fetches remote ones.
type Shared struct {
	groupPrefix Name
	nodeID      Name
	cacheOthers bool

	core        Core
	signer      packet.Signer
	store       storage.Store
	engine      *fetch.Engine
	freshness   time.Duration
	parallelism int
	logger      *slog.Logger

	publishMu sync.Mutex
}

func NewShared(cfg Config) (*Shared, error) {
	if len(cfg.GroupPrefix) == 0 {
		return nil, ErrNoGroupPrefix
	}
	if len(cfg.NodeID) == 0 {
		return nil, ErrNoNodeID
	}
	if cfg.Core == nil {
		return nil, ErrNoCore
	}
	sec := cfg.Security.WithDefaults()
	store := cfg.Store
	if store == nil {
		store = memstore.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "svs")
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	s := &Shared{
		groupPrefix: cfg.GroupPrefix.Clone(),
		nodeID:      cfg.NodeID.Clone(),
		cacheOthers: cfg.CacheOthers,
		core:        cfg.Core,
		signer:      sec.Signer,
		store:       store,
		freshness:   cfg.Freshness,
		parallelism: parallelism,
		logger:      logger,
	}
	s.engine = &fetch.Engine{
		GroupPrefix: s.groupPrefix,
		CacheOthers: s.cacheOthers,
		Client:      cfg.Client,
		Validator:   sec.Validator,
		Store:       store,
		Observer:    cfg.Observer,
		Tracer:      cfg.Tracer,
		Timeout:     cfg.Timeout,
	}
	return s, nil
}

// DataPrefix is where this node publishes: groupPrefix/d, plus the node id
// unless cache-others mode is on.
func (s *Shared) DataPrefix() Name {
	return name.DataPrefix(s.groupPrefix, s.cacheOthers, s.nodeID)
}

// SyncPrefix is groupPrefix/s.
func (s *Shared) SyncPrefix() Name {
	return name.SyncPrefix(s.groupPrefix)
}

func (s *Shared) DataName(nodeID Name, seq uint64) Name {
	return name.DataName(s.groupPrefix, s.cacheOthers, nodeID, seq)
}

func (s *Shared) NodeID() Name { return s.nodeID.Clone() }

func (s *Shared) Store() storage.Store { return s.store }

// FetchData fetches (nodeID, seq) with at most retries+1 attempts.
func (s *Shared) FetchData(ctx context.Context, nodeID Name, seq uint64, retries int) fetch.Outcome {
	return s.engine.Fetch(ctx, nodeID, seq, retries)
}

// PublishData signs content under the next local sequence number, stores the
// packet so peers can fetch it, and then advances the sync core. The core is
// not advanced if storing fails.
func (s *Shared) PublishData(content []byte) (uint64, Name, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	seq := s.core.SeqNum() + 1
	n := s.DataName(s.nodeID, seq)
	meta := packet.MetaInfo{ContentType: packet.ContentBlob, FreshnessPeriod: s.freshness}
	raw, _, err := packet.MakeData(n, content, meta, s.signer)
	if err != nil {
		return 0, nil, fmt.Errorf("svs: make data %s: %w", n, err)
	}
	if err := s.store.Put(n, raw); err != nil {
		return 0, nil, fmt.Errorf("svs: store %s: %w", n, err)
	}
	s.core.UpdateSeqNum(seq)
	s.logger.Debug("published", "name", n.String(), "seq", seq, "bytes", len(content))
	return seq, n, nil
}

// FetchMissing fetches every sequence number in missing, at most Parallelism
// at a time, and calls onOutcome once per object. Calls to onOutcome are
// serialized. It returns ctx's error if ctx ends before all fetches ran.
func (s *Shared) FetchMissing(ctx context.Context, missing []MissingData, retries int, onOutcome func(nodeID Name, seq uint64, out fetch.Outcome)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	var cbMu sync.Mutex
	report := func(nodeID Name, seq uint64, out fetch.Outcome) {
		if onOutcome == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		onOutcome(nodeID, seq, out)
	}

schedule:
	for _, m := range missing {
		if m.LowSeq > m.HighSeq {
			continue
		}
		nodeID := m.NodeID.Clone()
		for seq := m.LowSeq; ; seq++ {
			if gctx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				report(nodeID, seq, s.engine.Fetch(gctx, nodeID, seq, retries))
				return nil
			})
			if seq == m.HighSeq {
				break
			}
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
