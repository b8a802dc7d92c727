package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
	"github.com/threefoldtech/substrate-research/internal/pallet"
	"github.com/threefoldtech/substrate-research/internal/security"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func mustSign(t *testing.T, kp *security.Keypair, method string, args any) *Extrinsic {
	t.Helper()
	call, err := NewCall(method, args)
	if err != nil {
		t.Fatal(err)
	}
	ext, err := Sign(kp, call)
	if err != nil {
		t.Fatal(err)
	}
	return ext
}

func TestExtrinsicSignRoundtrip(t *testing.T) {
	kp, err := security.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	ext := mustSign(t, kp, CallPay, PayArgs{ReservationID: 7, Amount: 100})
	if err := ext.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ext.Origin != kp.AccountID() {
		t.Errorf("origin = %s", ext.Origin)
	}
}

func TestExtrinsicTamperDetected(t *testing.T) {
	kp, _ := security.GenerateKeypair()
	other, _ := security.GenerateKeypair()

	ext := mustSign(t, kp, CallAcceptContract, AcceptContractArgs{ReservationID: 1})

	tampered := *ext
	tampered.Call, _ = NewCall(CallAcceptContract, AcceptContractArgs{ReservationID: 2})
	if err := tampered.Verify(); err == nil {
		t.Error("altered call verified")
	}

	stolen := *ext
	stolen.Origin = other.AccountID()
	if err := stolen.Verify(); err == nil {
		t.Error("altered origin verified")
	}
}

func TestPoolRejectsBadSubmissions(t *testing.T) {
	kp, _ := security.GenerateKeypair()
	pool := NewPool(2)

	ext := mustSign(t, kp, CallClaimFunds, ReservationArgs{ReservationID: 1})
	if err := pool.Submit(ext); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := pool.Submit(ext); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate submit error = %v", err)
	}

	forged := *ext
	forged.ID = "forged"
	if err := pool.Submit(&forged); err == nil {
		t.Error("re-signed ID accepted without a matching signature")
	}

	second := mustSign(t, kp, CallClaimFunds, ReservationArgs{ReservationID: 2})
	if err := pool.Submit(second); err != nil {
		t.Fatal(err)
	}
	third := mustSign(t, kp, CallClaimFunds, ReservationArgs{ReservationID: 3})
	if err := pool.Submit(third); !errors.Is(err, ErrPoolFull) {
		t.Errorf("over-capacity error = %v", err)
	}
}

func TestPoolDrainPreservesOrder(t *testing.T) {
	kp, _ := security.GenerateKeypair()
	pool := NewPool(0)

	var ids []string
	for i := 0; i < 5; i++ {
		ext := mustSign(t, kp, CallPay, PayArgs{ReservationID: uint64(i), Amount: 1})
		ids = append(ids, ext.ID)
		if err := pool.Submit(ext); err != nil {
			t.Fatal(err)
		}
	}

	batch := pool.Drain()
	if len(batch) != 5 {
		t.Fatalf("drained %d extrinsics", len(batch))
	}
	for i, ext := range batch {
		if ext.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s", i, ext.ID, ids[i])
		}
	}
	if pool.Depth() != 0 {
		t.Errorf("pool depth after drain = %d", pool.Depth())
	}
}

func newTestNode(t *testing.T, clock Clock) (*Node, *Pool, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	pool := NewPool(0)
	node := NewNode(db, pallet.New(), pool, clock, time.Second)
	return node, pool, db
}

func TestProduceBlockAppliesExtrinsics(t *testing.T) {
	user, _ := security.GenerateKeypair()
	hostNode, _ := security.GenerateKeypair()
	clock := fixedClock{at: time.UnixMilli(1_600_000_000_000)}

	node, pool, db := newTestNode(t, clock)

	ext := mustSign(t, user, CallCreateContract, CreateContractArgs{
		NodeID: hostNode.NodeID(),
		Volume: domain.VolumeType{DiskType: domain.DiskSSD, Size: 50},
	})
	if err := pool.Submit(ext); err != nil {
		t.Fatal(err)
	}

	height, err := node.ProduceBlock()
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if height != 1 {
		t.Errorf("height = %d, want 1", height)
	}

	db.View(func(tx *sqlite.Tx) error {
		c, err := tx.Contract(0)
		if err != nil || c == nil {
			t.Fatalf("contract after block: %v, err %v", c, err)
		}
		if c.UserAccount != user.AccountID() {
			t.Errorf("user account = %s", c.UserAccount)
		}
		h, _ := tx.Height()
		if h != 1 {
			t.Errorf("stored height = %d", h)
		}
		last, _ := tx.LastBlockTime()
		if last != 1_600_000_000 {
			t.Errorf("last block time = %d", last)
		}
		return nil
	})
}

func TestFailedExtrinsicDoesNotAbortBlock(t *testing.T) {
	user, _ := security.GenerateKeypair()
	hostNode, _ := security.GenerateKeypair()
	node, pool, db := newTestNode(t, fixedClock{at: time.UnixMilli(1_600_000_000_000)})

	bad := mustSign(t, user, CallAcceptContract, AcceptContractArgs{ReservationID: 99})
	good := mustSign(t, user, CallCreateContract, CreateContractArgs{
		NodeID: hostNode.NodeID(),
		Volume: domain.VolumeType{DiskType: domain.DiskHDD, Size: 10},
	})
	pool.Submit(bad)
	pool.Submit(good)

	if _, err := node.ProduceBlock(); err != nil {
		t.Fatalf("produce block: %v", err)
	}

	db.View(func(tx *sqlite.Tx) error {
		c, _ := tx.Contract(0)
		if c == nil {
			t.Error("later extrinsic skipped after earlier failure")
		}
		return nil
	})
}

func TestUnknownCallRejected(t *testing.T) {
	user, _ := security.GenerateKeypair()
	node, pool, db := newTestNode(t, fixedClock{at: time.UnixMilli(1_600_000_000_000)})

	ext := mustSign(t, user, "mint_everything", struct{}{})
	if err := pool.Submit(ext); err != nil {
		t.Fatal(err)
	}
	if _, err := node.ProduceBlock(); err != nil {
		t.Fatalf("produce block: %v", err)
	}

	// Rejected call leaves no trace; height still advances.
	db.View(func(tx *sqlite.Tx) error {
		h, _ := tx.Height()
		if h != 1 {
			t.Errorf("height = %d", h)
		}
		id, _ := tx.ReservationID()
		if id != 0 {
			t.Errorf("reservation counter = %d", id)
		}
		return nil
	})
}
