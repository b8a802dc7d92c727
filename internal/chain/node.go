package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/threefoldtech/substrate-research/internal/infra/metrics"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
	"github.com/threefoldtech/substrate-research/internal/pallet"
)

// Clock supplies block timestamps. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DefaultBlockInterval matches a 6-second block cadence.
const DefaultBlockInterval = 6 * time.Second

// Node produces blocks: it drains the pool on a fixed cadence, applies
// each extrinsic in its own storage transaction, and runs the pallet's
// finalization sweep before bumping the height.
type Node struct {
	store    *sqlite.DB
	pallet   *pallet.Pallet
	pool     *Pool
	clock    Clock
	interval time.Duration

	// onBlock, when set, runs after every produced block with the new
	// height. The oracle worker hangs off this hook.
	onBlock func(height uint64)
}

// NewNode wires a block producer over the given store and pallet.
func NewNode(store *sqlite.DB, p *pallet.Pallet, pool *Pool, clock Clock, interval time.Duration) *Node {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	return &Node{
		store:    store,
		pallet:   p,
		pool:     pool,
		clock:    clock,
		interval: interval,
	}
}

// OnBlock registers the per-block callback. Must be called before Run.
func (n *Node) OnBlock(fn func(height uint64)) { n.onBlock = fn }

// Run produces blocks until the context is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	log.Printf("[chain] block producer started, interval %s", n.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[chain] block producer stopped")
			return ctx.Err()
		case <-ticker.C:
			height, err := n.ProduceBlock()
			if err != nil {
				log.Printf("[chain] block production failed: %v", err)
				continue
			}
			if n.onBlock != nil {
				n.onBlock(height)
			}
		}
	}
}

// ProduceBlock applies all pending extrinsics and finalizes one block.
// It returns the new height.
func (n *Node) ProduceBlock() (uint64, error) {
	start := time.Now()
	nowMS := uint64(n.clock.Now().UnixMilli())

	var height uint64
	if err := n.store.View(func(tx *sqlite.Tx) error {
		var err error
		height, err = tx.Height()
		return err
	}); err != nil {
		return 0, fmt.Errorf("read height: %w", err)
	}
	height++

	for _, ext := range n.pool.Drain() {
		err := n.store.Update(func(tx *sqlite.Tx) error {
			return n.apply(pallet.Env{Tx: tx, Height: height, NowMS: nowMS}, ext)
		})
		result := "ok"
		if err != nil {
			result = "err"
			log.Printf("[chain] extrinsic %s (%s) rejected: %v", ext.ID, ext.Call.Method, err)
		}
		metrics.Dispatches.WithLabelValues(ext.Call.Method, result).Inc()
	}

	err := n.store.Update(func(tx *sqlite.Tx) error {
		env := pallet.Env{Tx: tx, Height: height, NowMS: nowMS}
		if err := n.pallet.OnFinalize(env); err != nil {
			return err
		}
		return tx.SetHeight(height)
	})
	if err != nil {
		return 0, fmt.Errorf("finalize block %d: %w", height, err)
	}

	metrics.BlockHeight.Set(float64(height))
	metrics.BlockApplyLatency.Observe(time.Since(start).Seconds())
	return height, nil
}

// apply routes a verified extrinsic to its pallet dispatch.
func (n *Node) apply(env pallet.Env, ext *Extrinsic) error {
	switch ext.Call.Method {
	case CallCreateContract:
		var args CreateContractArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.CreateContract(env, ext.Origin, args.NodeID, args.Volume)

	case CallSetContractPrice:
		var args SetContractPriceArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.SetContractPrice(env, ext.Origin, args.ReservationID, args.Prices, args.FarmerAccount)

	case CallAcceptContract:
		var args AcceptContractArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.AcceptContract(env, ext.Origin, args.ReservationID)

	case CallPay:
		var args PayArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.Pay(env, ext.Origin, args.ReservationID, args.Amount)

	case CallContractDeployed:
		var args ReservationArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.ContractDeployed(env, ext.Origin, args.ReservationID)

	case CallContractCancelled:
		var args ReservationArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.ContractCancelled(env, ext.Origin, args.ReservationID)

	case CallCancelContract:
		var args ReservationArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.CancelContract(env, ext.Origin, args.ReservationID)

	case CallClaimFunds:
		var args ReservationArgs
		if err := decodeArgs(ext, &args); err != nil {
			return err
		}
		return n.pallet.ClaimFunds(env, ext.Origin, args.ReservationID)

	default:
		return fmt.Errorf("unknown call %q", ext.Call.Method)
	}
}

func decodeArgs(ext *Extrinsic, into any) error {
	if err := json.Unmarshal(ext.Call.Args, into); err != nil {
		return fmt.Errorf("decode %s args: %w", ext.Call.Method, err)
	}
	return nil
}
