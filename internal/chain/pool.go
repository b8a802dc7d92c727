package chain

import (
	"errors"
	"sync"

	"github.com/threefoldtech/substrate-research/internal/infra/metrics"
)

var (
	ErrPoolFull  = errors.New("transaction pool full")
	ErrDuplicate = errors.New("extrinsic already pooled")
)

// DefaultPoolCapacity bounds the number of pending extrinsics.
const DefaultPoolCapacity = 4096

// Pool holds verified extrinsics awaiting inclusion, in submission
// order. Inclusion order is the only ordering the runtime sees, so the
// pool never reorders.
type Pool struct {
	mu       sync.Mutex
	pending  []*Extrinsic
	seen     map[string]struct{}
	capacity int
}

// NewPool creates a pool with the given capacity (0 means default).
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &Pool{
		seen:     make(map[string]struct{}),
		capacity: capacity,
	}
}

// Submit verifies and enqueues an extrinsic. Signature failures and
// duplicates are rejected before the extrinsic ever reaches the pool.
func (p *Pool) Submit(ext *Extrinsic) error {
	if err := ext.Verify(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) >= p.capacity {
		return ErrPoolFull
	}
	if _, ok := p.seen[ext.ID]; ok {
		return ErrDuplicate
	}

	p.seen[ext.ID] = struct{}{}
	p.pending = append(p.pending, ext)
	metrics.PoolDepth.Set(float64(len(p.pending)))
	return nil
}

// Drain removes and returns all pending extrinsics in submission order.
func (p *Pool) Drain() []*Extrinsic {
	p.mu.Lock()
	defer p.mu.Unlock()

	batch := p.pending
	p.pending = nil
	for _, ext := range batch {
		delete(p.seen, ext.ID)
	}
	metrics.PoolDepth.Set(0)
	return batch
}

// Depth returns the number of pending extrinsics.
func (p *Pool) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
