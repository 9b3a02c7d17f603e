package svs

import "sync"

// Core is the state-vector sync component this package runs beside. It owns
// the local sequence number and announces it to the group; Shared only reads
// it when publishing and advances it after a successful publish.
type Core interface {
	SeqNum() uint64
	UpdateSeqNum(seq uint64)
}

// MissingData is a range of sequence numbers the sync component learned about
// but the application has not fetched yet. Both bounds are inclusive.
type MissingData struct {
	NodeID  Name
	LowSeq  uint64
	HighSeq uint64
}

// StaticCore is an in-memory Core for tools and tests.
type StaticCore struct {
	mu  sync.Mutex
	seq uint64
}

func NewStaticCore(seq uint64) *StaticCore { return &StaticCore{seq: seq} }

func (c *StaticCore) SeqNum() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *StaticCore) UpdateSeqNum(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
}
