package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// LotRepo encapsulates database operations for parking lots. Creating a
// lot also creates its spots: both happen inside one transaction so a
// partial failure leaves neither lot nor spots behind.
type LotRepo struct {
	db    *sql.DB
	spots *SpotRepo
}

// NewLotRepo constructs a LotRepo bound to the given database. The spot
// repository is needed for the batch spot creation that accompanies
// every new lot.
func NewLotRepo(db *sql.DB, spots *SpotRepo) *LotRepo {
	return &LotRepo{db: db, spots: spots}
}

// Create inserts the lot row and its NoOfSpots spot rows in a single
// transaction. On success the lot's ID is populated. The deferred
// rollback fires whenever commit is not reached, so the lot and its
// spots appear together or not at all.
func (r *LotRepo) Create(ctx context.Context, lot *model.Lot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO parking_lots (prime_location, address, pincode, price_per_hour, no_of_spots)
		 VALUES (?, ?, ?, ?, ?)`,
		lot.PrimeLocation, lot.Address, lot.Pincode, lot.PricePerHour, lot.NoOfSpots)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	lot.ID = uint64(id)

	if err := r.spots.CreateBulkTx(ctx, tx, lot.ID, lot.NoOfSpots); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetByID retrieves a lot by its id.
func (r *LotRepo) GetByID(ctx context.Context, id uint64) (*model.Lot, error) {
	const q = `SELECT id, prime_location, address, pincode, price_per_hour, no_of_spots, created_at, updated_at
	           FROM parking_lots WHERE id = ?`
	var l model.Lot
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&l.ID, &l.PrimeLocation, &l.Address, &l.Pincode,
		&l.PricePerHour, &l.NoOfSpots, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Search returns lots matching the optional filters. Empty filters
// match everything; text filters use case-insensitive LIKE patterns.
func (r *LotRepo) Search(ctx context.Context, name, pincode, address string) ([]model.Lot, error) {
	q := `SELECT id, prime_location, address, pincode, price_per_hour, no_of_spots, created_at, updated_at
	      FROM parking_lots`
	var conds []string
	var args []interface{}
	if name != "" {
		conds = append(conds, "prime_location LIKE ?")
		args = append(args, "%"+name+"%")
	}
	if pincode != "" {
		conds = append(conds, "pincode = ?")
		args = append(args, pincode)
	}
	if address != "" {
		conds = append(conds, "address LIKE ?")
		args = append(args, "%"+address+"%")
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]model.Lot, 0)
	for rows.Next() {
		var l model.Lot
		if err := rows.Scan(&l.ID, &l.PrimeLocation, &l.Address, &l.Pincode,
			&l.PricePerHour, &l.NoOfSpots, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

// Update changes the mutable attributes of a lot. The spot count is
// fixed at creation and cannot be updated here; rate changes take
// effect for fees computed after the update (rate at release time is
// what gets billed).
func (r *LotRepo) Update(ctx context.Context, lot *model.Lot) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE parking_lots SET prime_location = ?, address = ?, pincode = ?, price_per_hour = ?
		 WHERE id = ?`,
		lot.PrimeLocation, lot.Address, lot.Pincode, lot.PricePerHour, lot.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the lot does not exist or nothing changed; distinguish.
		if _, err := r.GetByID(ctx, lot.ID); err != nil {
			return err
		}
	}
	return nil
}

// CanDelete reports whether a lot may be deleted, which requires every
// owned spot to be unoccupied.
func (r *LotRepo) CanDelete(ctx context.Context, id uint64) (bool, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	n, err := r.spots.CountOccupiedByLot(ctx, id)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Delete removes a lot and its spots in one transaction. It returns
// ErrConflict when any spot is still occupied and ErrLotNotFound when
// the lot does not exist. The occupancy check runs inside the same
// transaction as the deletes so a booking that sneaks in between check
// and delete cannot orphan an open reservation.
func (r *LotRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var occupied int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parking_spots WHERE lot_id = ? AND occupied = 1`, id).Scan(&occupied)
	if err != nil {
		return err
	}
	if occupied > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM parking_spots WHERE lot_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM parking_lots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLotNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
