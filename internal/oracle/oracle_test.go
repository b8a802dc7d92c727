package oracle

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/threefoldtech/substrate-research/internal/chain"
	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
	"github.com/threefoldtech/substrate-research/internal/security"
)

func TestToDecimalBytes(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1_000_000, 18_446_744_073_709_551_615} {
		got := string(ToDecimalBytes(v))
		back, err := strconv.ParseUint(got, 10, 64)
		if err != nil || back != v {
			t.Errorf("ToDecimalBytes(%d) = %q, parses back to %d, %v", v, got, back, err)
		}
	}
}

// fakeExplorer serves a one-node grid: node → farm 7 → user 3.
func fakeExplorer(t *testing.T, nodeID string, farmerPub string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/nodes/"+nodeID, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Node{ID: 1, NodeID: nodeID, FarmID: 7})
	})
	mux.HandleFunc("/farms/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Farm{
			ID:         7,
			ThreebotID: 3,
			ResourcePrices: []domain.ResourcePrice{
				{Currency: 1, SRU: 10, HRU: 2, CRU: 5, MRU: 4},
			},
		})
	})
	mux.HandleFunc("/users/3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(User{ID: 3, Name: "farmer1", Pubkey: farmerPub})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExplorerClient(t *testing.T) {
	farmer, _ := security.GenerateKeypair()
	srv := fakeExplorer(t, "somenode", string(farmer.AccountID()))
	ex := NewExplorer(srv.URL)

	node, err := ex.NodeByID("somenode")
	if err != nil {
		t.Fatalf("node fetch: %v", err)
	}
	if node.FarmID != 7 {
		t.Errorf("farm id = %d", node.FarmID)
	}

	farm, err := ex.FarmByID(node.FarmID)
	if err != nil {
		t.Fatalf("farm fetch: %v", err)
	}
	if farm.ResourcePrices[0].SRU != 10 {
		t.Errorf("sru price = %d", farm.ResourcePrices[0].SRU)
	}

	user, err := ex.UserByID(farm.ThreebotID)
	if err != nil {
		t.Fatalf("user fetch: %v", err)
	}
	if user.Name != "farmer1" {
		t.Errorf("user = %+v", user)
	}
}

func TestExplorerErrorsWrapFetching(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewExplorer(srv.URL).NodeByID("x")
	if !errors.Is(err, domain.ErrHTTPFetching) {
		t.Errorf("error = %v, want ErrHTTPFetching", err)
	}
}

type workerFixture struct {
	db      *sqlite.DB
	pool    *chain.Pool
	worker  *Worker
	oracle  *security.Keypair
	farmer  *security.Keypair
	nodeKey *security.Keypair
}

type testClock struct{ at time.Time }

func (c *testClock) Now() time.Time { return c.at }

func newWorkerFixture(t *testing.T) (*workerFixture, *testClock) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	oracleKey, _ := security.GenerateKeypair()
	farmerKey, _ := security.GenerateKeypair()
	nodeKey, _ := security.GenerateKeypair()

	srv := fakeExplorer(t, nodeKey.NodeID(), string(farmerKey.AccountID()))

	clock := &testClock{at: time.UnixMilli(1_600_000_000_000)}
	pool := chain.NewPool(0)
	w := NewWorker(db, NewExplorer(srv.URL), pool, oracleKey, clock)

	return &workerFixture{
		db:      db,
		pool:    pool,
		worker:  w,
		oracle:  oracleKey,
		farmer:  farmerKey,
		nodeKey: nodeKey,
	}, clock
}

// seedContract stores reservation 0 pointing at the fixture's node.
func (f *workerFixture) seedContract(t *testing.T) {
	t.Helper()
	err := f.db.Update(func(tx *sqlite.Tx) error {
		if err := tx.PutContract(&domain.Contract{
			ReservationID: 0,
			NodeID:        f.nodeKey.NodeID(),
			UserAccount:   "u",
			WorkloadState: domain.StateCreated,
		}); err != nil {
			return err
		}
		return tx.SetReservationID(1)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWorkerPricesNewestReservation(t *testing.T) {
	f, _ := newWorkerFixture(t)
	f.seedContract(t)

	if err := f.worker.run(); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	batch := f.pool.Drain()
	if len(batch) != 1 {
		t.Fatalf("pool holds %d extrinsics, want 1", len(batch))
	}
	ext := batch[0]
	if ext.Origin != f.oracle.AccountID() {
		t.Errorf("extrinsic origin = %s, want oracle account", ext.Origin)
	}
	if ext.Call.Method != chain.CallSetContractPrice {
		t.Errorf("method = %s", ext.Call.Method)
	}
	if err := ext.Verify(); err != nil {
		t.Errorf("extrinsic signature: %v", err)
	}

	var args chain.SetContractPriceArgs
	if err := json.Unmarshal(ext.Call.Args, &args); err != nil {
		t.Fatal(err)
	}
	if args.ReservationID != 0 || args.Prices.SRU != 10 {
		t.Errorf("args = %+v", args)
	}
	if args.FarmerAccount != f.farmer.AccountID() {
		t.Errorf("farmer = %s", args.FarmerAccount)
	}

	cached, ok, _ := f.db.GetOffchain("worker::current_reservation_id")
	if !ok || cached != "0" {
		t.Errorf("cache = %q ok=%v, want \"0\"", cached, ok)
	}
}

func TestWorkerIdempotentPerReservation(t *testing.T) {
	f, _ := newWorkerFixture(t)
	f.seedContract(t)

	if err := f.worker.run(); err != nil {
		t.Fatal(err)
	}
	if err := f.worker.run(); !errors.Is(err, errNothingToDo) {
		t.Errorf("second run error = %v, want nothing-to-do", err)
	}
	if got := f.pool.Depth(); got != 1 {
		t.Errorf("pool depth after repeat run = %d, want 1", got)
	}
}

func TestWorkerNoReservations(t *testing.T) {
	f, _ := newWorkerFixture(t)
	if err := f.worker.run(); !errors.Is(err, errNothingToDo) {
		t.Errorf("empty chain run error = %v", err)
	}
}

func TestWorkerFetchFailureLeavesCache(t *testing.T) {
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	kp, _ := security.GenerateKeypair()
	nodeKey, _ := security.GenerateKeypair()
	pool := chain.NewPool(0)
	w := NewWorker(db, NewExplorer(srv.URL), pool, kp, &testClock{at: time.Unix(0, 0)})

	db.Update(func(tx *sqlite.Tx) error {
		tx.PutContract(&domain.Contract{ReservationID: 0, NodeID: nodeKey.NodeID()})
		return tx.SetReservationID(1)
	})

	if err := w.run(); !errors.Is(err, domain.ErrHTTPFetching) {
		t.Fatalf("run error = %v, want ErrHTTPFetching", err)
	}
	if _, ok, _ := db.GetOffchain("worker::current_reservation_id"); ok {
		t.Error("failed run advanced the cache")
	}
	if pool.Depth() != 0 {
		t.Error("failed run submitted an extrinsic")
	}
	if _, ok, _ := db.GetOffchain("worker::lock"); ok {
		t.Error("failed run left the lock held")
	}
}

func TestWorkerWithoutLocalAccount(t *testing.T) {
	f, _ := newWorkerFixture(t)
	f.seedContract(t)
	f.worker.keypair = nil

	if err := f.worker.run(); !errors.Is(err, domain.ErrNoLocalAccount) {
		t.Errorf("keyless run error = %v", err)
	}
	if _, ok, _ := f.db.GetOffchain("worker::current_reservation_id"); ok {
		t.Error("keyless run advanced the cache")
	}
}

func TestWorkerLock(t *testing.T) {
	f, clock := newWorkerFixture(t)
	f.seedContract(t)

	// A live lock held by another worker blocks this run.
	deadline := clock.at.Add(5 * time.Second).UnixMilli()
	f.db.SetOffchain("worker::lock", strconv.FormatInt(deadline, 10))
	if err := f.worker.run(); !errors.Is(err, errNothingToDo) {
		t.Fatalf("run under live lock = %v", err)
	}
	if f.pool.Depth() != 0 {
		t.Error("locked run did work")
	}

	// Past the deadline the lock is stale and gets stolen.
	clock.at = clock.at.Add(12 * time.Second)
	if err := f.worker.run(); err != nil {
		t.Fatalf("run with stale lock: %v", err)
	}
	if f.pool.Depth() != 1 {
		t.Error("stale lock was not stolen")
	}
}
