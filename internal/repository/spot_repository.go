package repository // repository defines data access for parking spots

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// SpotRepo provides methods to work with parking spots in the database.
// The occupancy flag is the single source of truth for availability and
// is only ever flipped through TryOccupy / SetAvailable, so the
// reservation flow keeps it in lockstep with open reservations.
type SpotRepo struct {
	db *sql.DB
}

// NewSpotRepo constructs a SpotRepo with the given DB handle.
func NewSpotRepo(db *sql.DB) *SpotRepo {
	return &SpotRepo{db: db}
}

// GetByID retrieves a spot by its id.
func (r *SpotRepo) GetByID(ctx context.Context, id uint64) (*model.Spot, error) {
	const q = `SELECT id, lot_id, occupied, created_at, updated_at
	           FROM parking_spots WHERE id = ?`
	var s model.Spot
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.LotID, &s.Occupied, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSpotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// TryOccupy atomically transitions an available spot to occupied. The
// UPDATE is guarded by the expected prior value of the flag, so of two
// concurrent callers exactly one sees rows-affected == 1. It returns
// false both when the spot is already occupied and when it does not
// exist; callers that need to distinguish should GetByID first.
func (r *SpotRepo) TryOccupy(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE parking_spots SET occupied = 1 WHERE id = ? AND occupied = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAvailable marks a spot as free. The statement is unconditional so
// releasing an already-available spot is a no-op success, which keeps
// the compensation path of the booking flow idempotent.
func (r *SpotRepo) SetAvailable(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE parking_spots SET occupied = 0 WHERE id = ?`, id)
	return err
}

// CreateBulkTx inserts n spot rows for a lot inside the provided
// transaction. Spots are only ever created together with their lot; the
// caller commits or rolls back the whole unit.
func (r *SpotRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, lotID uint64, n uint32) error {
	if n == 0 {
		return nil
	}
	query := `INSERT INTO parking_spots (lot_id, occupied) VALUES `
	args := make([]interface{}, 0, n)
	for i := uint32(0); i < n; i++ {
		if i > 0 {
			query += ","
		}
		query += "(?, 0)"
		args = append(args, lotID)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ListByLot retrieves all spots of a lot ordered by id. When
// availableOnly is set, occupied spots are filtered out.
func (r *SpotRepo) ListByLot(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error) {
	q := `SELECT id, lot_id, occupied, created_at, updated_at
	      FROM parking_spots WHERE lot_id = ?`
	if availableOnly {
		q += ` AND occupied = 0`
	}
	q += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Spot
	for rows.Next() {
		var s model.Spot
		if err := rows.Scan(&s.ID, &s.LotID, &s.Occupied, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CountOccupiedByLot returns the number of occupied spots in a lot. It
// backs the lot deletion guard.
func (r *SpotRepo) CountOccupiedByLot(ctx context.Context, lotID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM parking_spots WHERE lot_id = ? AND occupied = 1`, lotID).Scan(&n)
	return n, err
}
