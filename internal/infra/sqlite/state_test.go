package sqlite

import (
	"errors"
	"testing"

	"github.com/threefoldtech/substrate-research/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContractRoundtrip(t *testing.T) {
	db := openTestDB(t)

	want := &domain.Contract{
		ReservationID:  7,
		EscrowAccount:  "aa",
		UserAccount:    "bb",
		FarmerAccount:  "cc",
		NodeID:         "node58",
		ResourcePrices: domain.ResourcePrice{Currency: 1, SRU: 10, HRU: 2, CRU: 3, NRU: 4, MRU: 5},
		WorkloadState:  domain.StateDeployed,
		Accepted:       true,
		ExpiresAt:      1_700_000_000,
		LastClaimed:    1_700_000_000_123,
	}

	err := db.Update(func(tx *Tx) error { return tx.PutContract(want) })
	if err != nil {
		t.Fatalf("PutContract() error: %v", err)
	}

	var got *domain.Contract
	err = db.View(func(tx *Tx) error {
		var err error
		got, err = tx.Contract(7)
		return err
	})
	if err != nil {
		t.Fatalf("Contract() error: %v", err)
	}
	if got == nil {
		t.Fatal("Contract() returned nil for stored contract")
	}
	if *got != *want {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestContractMissing(t *testing.T) {
	db := openTestDB(t)

	err := db.View(func(tx *Tx) error {
		c, err := tx.Contract(99)
		if err != nil {
			return err
		}
		if c != nil {
			t.Errorf("want nil for missing contract, got %+v", c)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	boom := errors.New("boom")

	err := db.Update(func(tx *Tx) error {
		if err := tx.SetBalance("acct", 100); err != nil {
			return err
		}
		if err := tx.SetReservationID(5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	db.View(func(tx *Tx) error {
		bal, _ := tx.Balance("acct")
		if bal != 0 {
			t.Errorf("balance = %d after rollback, want 0", bal)
		}
		id, _ := tx.ReservationID()
		if id != 0 {
			t.Errorf("reservation id = %d after rollback, want 0", id)
		}
		return nil
	})
}

func TestExpirationIndex(t *testing.T) {
	db := openTestDB(t)

	err := db.Update(func(tx *Tx) error {
		for _, e := range []Expiration{{100, 1}, {100, 2}, {105, 3}, {110, 1}} {
			if err := tx.AddExpiration(e.Second, e.ReservationID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	db.View(func(tx *Tx) error {
		ids, err := tx.ExpirationsAt(100)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
			t.Errorf("ExpirationsAt(100) = %v, want [1 2]", ids)
		}

		between, err := tx.ExpirationsBetween(100, 110)
		if err != nil {
			t.Fatal(err)
		}
		// Half-open interval: 110 excluded.
		if len(between) != 3 {
			t.Errorf("ExpirationsBetween(100,110) = %v, want 3 entries", between)
		}
		return nil
	})

	// Removal deletes exactly one enrollment.
	db.Update(func(tx *Tx) error { return tx.RemoveExpiration(100, 1) })
	db.View(func(tx *Tx) error {
		ids, _ := tx.ExpirationsAt(100)
		if len(ids) != 1 || ids[0] != 2 {
			t.Errorf("after removal ExpirationsAt(100) = %v, want [2]", ids)
		}
		return nil
	})
}

func TestBalances(t *testing.T) {
	db := openTestDB(t)

	db.View(func(tx *Tx) error {
		bal, err := tx.Balance("unknown")
		if err != nil || bal != 0 {
			t.Errorf("Balance(unknown) = %d, %v; want 0, nil", bal, err)
		}
		return nil
	})

	db.Update(func(tx *Tx) error { return tx.SetBalance("a", 1_000_000_000_000_000) })
	db.View(func(tx *Tx) error {
		bal, _ := tx.Balance("a")
		if bal != 1_000_000_000_000_000 {
			t.Errorf("Balance(a) = %d", bal)
		}
		return nil
	})
}

func TestAccountReservationsOrdered(t *testing.T) {
	db := openTestDB(t)

	db.Update(func(tx *Tx) error {
		for _, id := range []uint64{3, 1, 2} {
			if err := tx.AppendAccountReservation("user", id); err != nil {
				return err
			}
		}
		return nil
	})

	db.View(func(tx *Tx) error {
		ids, err := tx.AccountReservations("user")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 3 || ids[0] != 3 || ids[1] != 1 || ids[2] != 2 {
			t.Errorf("AccountReservations = %v, want [3 1 2] (insertion order)", ids)
		}
		return nil
	})
}

func TestOffchainKV(t *testing.T) {
	db := openTestDB(t)

	if _, ok, _ := db.GetOffchain("k"); ok {
		t.Error("GetOffchain on empty store reported a value")
	}
	if err := db.SetOffchain("k", "41"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetOffchain("k", "42"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetOffchain("k")
	if err != nil || !ok || v != "42" {
		t.Errorf("GetOffchain = %q, %v, %v; want 42, true, nil", v, ok, err)
	}
	if err := db.DeleteOffchain("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := db.GetOffchain("k"); ok {
		t.Error("key survived DeleteOffchain")
	}
}

func TestEvents(t *testing.T) {
	db := openTestDB(t)

	db.Update(func(tx *Tx) error {
		tx.AppendEvent(domain.Event{Height: 1, Name: domain.EventContractAdded, Account: "u", NodeID: "n", ReservationID: 0})
		tx.AppendEvent(domain.Event{Height: 2, Name: domain.EventContractPaid, Account: "e", ReservationID: 0})
		return nil
	})

	db.View(func(tx *Tx) error {
		evs, err := tx.EventsSince(2)
		if err != nil {
			t.Fatal(err)
		}
		if len(evs) != 1 || evs[0].Name != domain.EventContractPaid {
			t.Errorf("EventsSince(2) = %+v", evs)
		}
		return nil
	})
}
