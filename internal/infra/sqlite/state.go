package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/threefoldtech/substrate-research/internal/domain"
)

// Keys in chain_meta.
const (
	metaReservationID = "reservation_id"
	metaLastBlockTime = "last_block_time"
	metaHeight        = "height"
)

// ─── Chain meta ─────────────────────────────────────────────────────────────

func (t *Tx) meta(key string) (uint64, error) {
	var v int64
	err := t.tx.QueryRow(`SELECT value FROM chain_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read chain_meta %q: %w", key, err)
	}
	return uint64(v), nil
}

func (t *Tx) setMeta(key string, v uint64) error {
	_, err := t.tx.Exec(
		`INSERT INTO chain_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, int64(v),
	)
	return err
}

// ReservationID returns the next unconsumed reservation ID.
func (t *Tx) ReservationID() (uint64, error) { return t.meta(metaReservationID) }

// SetReservationID stores the next reservation ID.
func (t *Tx) SetReservationID(v uint64) error { return t.setMeta(metaReservationID, v) }

// LastBlockTime returns the wall-clock seconds recorded at the
// previous finalization, 0 before the first sweep.
func (t *Tx) LastBlockTime() (uint64, error) { return t.meta(metaLastBlockTime) }

// SetLastBlockTime records the finalization wall clock.
func (t *Tx) SetLastBlockTime(v uint64) error { return t.setMeta(metaLastBlockTime, v) }

// Height returns the current block height.
func (t *Tx) Height() (uint64, error) { return t.meta(metaHeight) }

// SetHeight stores the current block height.
func (t *Tx) SetHeight(v uint64) error { return t.setMeta(metaHeight, v) }

// ─── Contracts ──────────────────────────────────────────────────────────────

const contractCols = `reservation_id, escrow_account, user_account, farmer_account,
	node_id, currency, sru, hru, cru, nru, mru,
	workload_state, accepted, expires_at, last_claimed`

// Contract loads a contract by reservation ID, nil if absent.
func (t *Tx) Contract(id uint64) (*domain.Contract, error) {
	row := t.tx.QueryRow(
		`SELECT `+contractCols+` FROM contracts WHERE reservation_id = ?`, int64(id),
	)
	return scanContract(row)
}

// PutContract inserts or replaces a contract record.
func (t *Tx) PutContract(c *domain.Contract) error {
	_, err := t.tx.Exec(
		`INSERT INTO contracts (`+contractCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(reservation_id) DO UPDATE SET
			escrow_account=excluded.escrow_account,
			user_account=excluded.user_account,
			farmer_account=excluded.farmer_account,
			node_id=excluded.node_id,
			currency=excluded.currency,
			sru=excluded.sru,
			hru=excluded.hru,
			cru=excluded.cru,
			nru=excluded.nru,
			mru=excluded.mru,
			workload_state=excluded.workload_state,
			accepted=excluded.accepted,
			expires_at=excluded.expires_at,
			last_claimed=excluded.last_claimed`,
		int64(c.ReservationID), string(c.EscrowAccount), string(c.UserAccount),
		string(c.FarmerAccount), c.NodeID,
		int64(c.ResourcePrices.Currency), int64(c.ResourcePrices.SRU),
		int64(c.ResourcePrices.HRU), int64(c.ResourcePrices.CRU),
		int64(c.ResourcePrices.NRU), int64(c.ResourcePrices.MRU),
		string(c.WorkloadState), c.Accepted, int64(c.ExpiresAt), int64(c.LastClaimed),
	)
	return err
}

func scanContract(s scanner) (*domain.Contract, error) {
	var c domain.Contract
	var resID, currency, sru, hru, cru, nru, mru, expiresAt, lastClaimed int64
	var escrow, user, farmer, state string

	err := s.Scan(&resID, &escrow, &user, &farmer, &c.NodeID,
		&currency, &sru, &hru, &cru, &nru, &mru,
		&state, &c.Accepted, &expiresAt, &lastClaimed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.ReservationID = uint64(resID)
	c.EscrowAccount = domain.AccountID(escrow)
	c.UserAccount = domain.AccountID(user)
	c.FarmerAccount = domain.AccountID(farmer)
	c.ResourcePrices = domain.ResourcePrice{
		Currency: uint64(currency), SRU: uint64(sru), HRU: uint64(hru),
		CRU: uint64(cru), NRU: uint64(nru), MRU: uint64(mru),
	}
	c.WorkloadState = domain.WorkloadState(state)
	c.ExpiresAt = uint64(expiresAt)
	c.LastClaimed = uint64(lastClaimed)
	return &c, nil
}

// ─── Secondary maps ─────────────────────────────────────────────────────────

// PutVolume stores the volume reserved under a reservation ID.
func (t *Tx) PutVolume(id uint64, v domain.VolumeType) error {
	_, err := t.tx.Exec(
		`INSERT INTO volume_reservations (reservation_id, disk_type, size) VALUES (?, ?, ?)
		 ON CONFLICT(reservation_id) DO UPDATE SET disk_type=excluded.disk_type, size=excluded.size`,
		int64(id), v.DiskType, int64(v.Size),
	)
	return err
}

// Volume loads the reserved volume for a reservation.
func (t *Tx) Volume(id uint64) (domain.VolumeType, bool, error) {
	var v domain.VolumeType
	var size int64
	err := t.tx.QueryRow(
		`SELECT disk_type, size FROM volume_reservations WHERE reservation_id = ?`, int64(id),
	).Scan(&v.DiskType, &size)
	if err == sql.ErrNoRows {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v.Size = uint64(size)
	return v, true, nil
}

// AppendAccountReservation records a reservation under its user account.
func (t *Tx) AppendAccountReservation(account domain.AccountID, id uint64) error {
	_, err := t.tx.Exec(
		`INSERT INTO account_reservations (account, reservation_id) VALUES (?, ?)`,
		string(account), int64(id),
	)
	return err
}

// AccountReservations lists a user's reservation IDs in creation order.
func (t *Tx) AccountReservations(account domain.AccountID) ([]uint64, error) {
	rows, err := t.tx.Query(
		`SELECT reservation_id FROM account_reservations WHERE account = ? ORDER BY id`,
		string(account),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// SetReservationState stores the standalone workload state entry.
func (t *Tx) SetReservationState(id uint64, state domain.WorkloadState) error {
	_, err := t.tx.Exec(
		`INSERT INTO reservation_state (reservation_id, state) VALUES (?, ?)
		 ON CONFLICT(reservation_id) DO UPDATE SET state=excluded.state`,
		int64(id), string(state),
	)
	return err
}

// ReservationState loads the standalone workload state entry.
func (t *Tx) ReservationState(id uint64) (domain.WorkloadState, bool, error) {
	var state string
	err := t.tx.QueryRow(
		`SELECT state FROM reservation_state WHERE reservation_id = ?`, int64(id),
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return domain.WorkloadState(state), true, nil
}

// ─── Expiration index ───────────────────────────────────────────────────────

// AddExpiration enrolls a reservation in the bucket for a unix second.
func (t *Tx) AddExpiration(sec, id uint64) error {
	_, err := t.tx.Exec(
		`INSERT INTO contract_expirations (expires_at, reservation_id) VALUES (?, ?)`,
		int64(sec), int64(id),
	)
	return err
}

// RemoveExpiration removes one enrollment of id from the bucket.
func (t *Tx) RemoveExpiration(sec, id uint64) error {
	_, err := t.tx.Exec(
		`DELETE FROM contract_expirations WHERE id IN (
			SELECT id FROM contract_expirations
			WHERE expires_at = ? AND reservation_id = ? ORDER BY id LIMIT 1
		)`,
		int64(sec), int64(id),
	)
	return err
}

// ExpirationsAt lists the reservation IDs in one bucket, in insertion
// order.
func (t *Tx) ExpirationsAt(sec uint64) ([]uint64, error) {
	rows, err := t.tx.Query(
		`SELECT reservation_id FROM contract_expirations WHERE expires_at = ? ORDER BY id`,
		int64(sec),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, rows.Err()
}

// Expiration is one enrolled (second, reservation) pair.
type Expiration struct {
	Second        uint64
	ReservationID uint64
}

// ExpirationsBetween snapshots every enrollment with from ≤ second < to,
// ordered by second then insertion.
func (t *Tx) ExpirationsBetween(from, to uint64) ([]Expiration, error) {
	rows, err := t.tx.Query(
		`SELECT expires_at, reservation_id FROM contract_expirations
		 WHERE expires_at >= ? AND expires_at < ? ORDER BY expires_at, id`,
		int64(from), int64(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expiration
	for rows.Next() {
		var sec, id int64
		if err := rows.Scan(&sec, &id); err != nil {
			return nil, err
		}
		out = append(out, Expiration{Second: uint64(sec), ReservationID: uint64(id)})
	}
	return out, rows.Err()
}

// ─── Balances ───────────────────────────────────────────────────────────────

// Balance returns the free balance of an account, 0 if unknown.
func (t *Tx) Balance(account domain.AccountID) (uint64, error) {
	var v int64
	err := t.tx.QueryRow(
		`SELECT balance FROM accounts WHERE account = ?`, string(account),
	).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// SetBalance stores an account's free balance.
func (t *Tx) SetBalance(account domain.AccountID, balance uint64) error {
	_, err := t.tx.Exec(
		`INSERT INTO accounts (account, balance) VALUES (?, ?)
		 ON CONFLICT(account) DO UPDATE SET balance=excluded.balance`,
		string(account), int64(balance),
	)
	return err
}

// ─── Events ─────────────────────────────────────────────────────────────────

// AppendEvent records a deposited event.
func (t *Tx) AppendEvent(ev domain.Event) error {
	_, err := t.tx.Exec(
		`INSERT INTO events (height, name, account, node_id, reservation_id)
		 VALUES (?, ?, ?, ?, ?)`,
		int64(ev.Height), ev.Name, string(ev.Account), ev.NodeID, int64(ev.ReservationID),
	)
	return err
}

// EventsSince lists events deposited at or after a height, in order.
func (t *Tx) EventsSince(height uint64) ([]domain.Event, error) {
	rows, err := t.tx.Query(
		`SELECT height, name, account, node_id, reservation_id
		 FROM events WHERE height >= ? ORDER BY id`,
		int64(height),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var h, resID int64
		var account string
		if err := rows.Scan(&h, &ev.Name, &account, &ev.NodeID, &resID); err != nil {
			return nil, err
		}
		ev.Height = uint64(h)
		ev.Account = domain.AccountID(account)
		ev.ReservationID = uint64(resID)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ─── Off-chain worker KV ────────────────────────────────────────────────────
// Replica-local, written outside dispatch transactions.

// GetOffchain reads an off-chain worker value.
func (d *DB) GetOffchain(key string) (string, bool, error) {
	var v string
	err := d.db.QueryRow(`SELECT value FROM offchain_kv WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetOffchain writes an off-chain worker value.
func (d *DB) SetOffchain(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO offchain_kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// DeleteOffchain removes an off-chain worker key.
func (d *DB) DeleteOffchain(key string) error {
	_, err := d.db.Exec(`DELETE FROM offchain_kv WHERE key = ?`, key)
	return err
}
