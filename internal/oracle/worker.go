package oracle

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/threefoldtech/substrate-research/internal/chain"
	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/metrics"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
	"github.com/threefoldtech/substrate-research/internal/security"
)

// Off-chain storage keys. The lock keeps concurrent workers off the
// same work; the cache remembers the last reservation already priced.
const (
	lockKey  = "worker::lock"
	cacheKey = "worker::current_reservation_id"
)

// lockDeadline caps how long a crashed run can hold the worker lock.
// Three block intervals would be 18s; the wall-clock cap wins.
const lockDeadline = 11 * time.Second

// Worker prices the most recently created contract after every block.
type Worker struct {
	store    *sqlite.DB
	explorer *Explorer
	pool     *chain.Pool
	keypair  *security.Keypair
	clock    chain.Clock
}

// NewWorker wires an oracle worker. keypair may be nil on nodes without
// a local oracle account; such nodes observe but never submit.
func NewWorker(store *sqlite.DB, explorer *Explorer, pool *chain.Pool, kp *security.Keypair, clock chain.Clock) *Worker {
	if clock == nil {
		clock = chain.SystemClock{}
	}
	return &Worker{
		store:    store,
		explorer: explorer,
		pool:     pool,
		keypair:  kp,
		clock:    clock,
	}
}

// RunForBlock is the per-block entry point. Failures are logged, never
// fatal: the next block retries the same reservation because the cache
// only advances on success.
func (w *Worker) RunForBlock(height uint64) {
	err := w.run()
	switch {
	case err == nil:
		metrics.OracleRuns.WithLabelValues("ok").Inc()
	case errors.Is(err, errNothingToDo):
		metrics.OracleRuns.WithLabelValues("skipped").Inc()
	default:
		metrics.OracleRuns.WithLabelValues("err").Inc()
		log.Printf("[oracle] block %d: %v", height, err)
	}
}

var errNothingToDo = errors.New("nothing to price")

func (w *Worker) run() error {
	release, err := w.acquireLock()
	if err != nil {
		return err
	}
	defer release()

	// The newest reservation is the counter minus one.
	var nextID uint64
	if err := w.store.View(func(tx *sqlite.Tx) error {
		var err error
		nextID, err = tx.ReservationID()
		return err
	}); err != nil {
		return err
	}
	if nextID == 0 {
		return errNothingToDo
	}
	target := nextID - 1

	if cached, ok, err := w.store.GetOffchain(cacheKey); err != nil {
		return err
	} else if ok && cached == strconv.FormatUint(target, 10) {
		return errNothingToDo
	}

	var contract *domain.Contract
	if err := w.store.View(func(tx *sqlite.Tx) error {
		var err error
		contract, err = tx.Contract(target)
		return err
	}); err != nil {
		return err
	}
	if contract == nil {
		return fmt.Errorf("reservation %d has no contract", target)
	}

	prices, farmer, err := w.resolvePricing(contract.NodeID)
	if err != nil {
		return err
	}

	if err := w.submit(target, prices, farmer); err != nil {
		return err
	}

	// Only a successful submission advances the cache; anything earlier
	// leaves the reservation to be retried next block.
	return w.store.SetOffchain(cacheKey, strconv.FormatUint(target, 10))
}

// resolvePricing walks node → farm → user on the explorer and returns
// the farm's first price listing plus the farmer's account.
func (w *Worker) resolvePricing(nodeID string) (domain.ResourcePrice, domain.AccountID, error) {
	start := time.Now()
	defer func() {
		metrics.OracleFetchLatency.Observe(time.Since(start).Seconds())
	}()

	node, err := w.explorer.NodeByID(nodeID)
	if err != nil {
		return domain.ResourcePrice{}, "", err
	}
	farm, err := w.explorer.FarmByID(node.FarmID)
	if err != nil {
		return domain.ResourcePrice{}, "", err
	}
	if len(farm.ResourcePrices) == 0 {
		return domain.ResourcePrice{}, "", fmt.Errorf("%w: farm %d lists no prices", domain.ErrHTTPFetching, farm.ID)
	}
	user, err := w.explorer.UserByID(farm.ThreebotID)
	if err != nil {
		return domain.ResourcePrice{}, "", err
	}

	farmer, err := security.AccountFromHexPubkey(user.Pubkey)
	if err != nil {
		return domain.ResourcePrice{}, "", fmt.Errorf("%w: user %d pubkey: %v", domain.ErrHTTPFetching, user.ID, err)
	}
	return farm.ResourcePrices[0], farmer, nil
}

func (w *Worker) submit(id uint64, prices domain.ResourcePrice, farmer domain.AccountID) error {
	if w.keypair == nil {
		return domain.ErrNoLocalAccount
	}

	call, err := chain.NewCall(chain.CallSetContractPrice, chain.SetContractPriceArgs{
		ReservationID: id,
		Prices:        prices,
		FarmerAccount: farmer,
	})
	if err != nil {
		return err
	}
	ext, err := chain.Sign(w.keypair, call)
	if err != nil {
		return err
	}
	if err := w.pool.Submit(ext); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrOffchainSignedTx, err)
	}
	log.Printf("[oracle] priced reservation %d for farmer %s", id, farmer)
	return nil
}

// acquireLock takes the worker storage lock, stealing it if the holder's
// deadline has passed. The returned func releases the lock.
func (w *Worker) acquireLock() (func(), error) {
	now := w.clock.Now()

	if raw, ok, err := w.store.GetOffchain(lockKey); err != nil {
		return nil, err
	} else if ok {
		deadline, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && now.UnixMilli() < deadline {
			return nil, errNothingToDo
		}
	}

	deadline := now.Add(lockDeadline).UnixMilli()
	if err := w.store.SetOffchain(lockKey, strconv.FormatInt(deadline, 10)); err != nil {
		return nil, err
	}
	return func() {
		if err := w.store.DeleteOffchain(lockKey); err != nil {
			log.Printf("[oracle] releasing worker lock: %v", err)
		}
	}, nil
}
