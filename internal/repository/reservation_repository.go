package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

// ReservationRepo provides CRUD operations for reservations. A
// reservation is open while leaving_at is NULL; completion sets
// leaving_at and cost exactly once and frees the spot in the same
// transaction. All timestamp fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationCols = `id, user_id, spot_id, vehicle_number, reserved_at, parked_at,
	leaving_at, cost, payment_confirmed, payment_ref, created_at, updated_at`

// scanReservation reads one reservation row, converting the nullable
// columns into pointers on the model.
func scanReservation(row interface{ Scan(...interface{}) error }) (*model.Reservation, error) {
	var (
		res        model.Reservation
		parkedAt   sql.NullTime
		leavingAt  sql.NullTime
		cost       sql.NullFloat64
		paymentRef sql.NullString
	)
	err := row.Scan(
		&res.ID, &res.UserID, &res.SpotID, &res.VehicleNumber, &res.ReservedAt,
		&parkedAt, &leavingAt, &cost, &res.PaymentConfirmed, &paymentRef,
		&res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parkedAt.Valid {
		t := parkedAt.Time
		res.ParkedAt = &t
	}
	if leavingAt.Valid {
		t := leavingAt.Time
		res.LeavingAt = &t
	}
	if cost.Valid {
		v := cost.Float64
		res.Cost = &v
	}
	if paymentRef.Valid {
		s := paymentRef.String
		res.PaymentRef = &s
	}
	return &res, nil
}

// Create inserts a new open reservation with reserved_at set to the
// current UTC time and returns the stored row.
func (r *ReservationRepo) Create(ctx context.Context, userID, spotID uint64, vehicleNumber string) (*model.Reservation, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations (user_id, spot_id, vehicle_number, reserved_at)
		 VALUES (?, ?, ?, ?)`,
		userID, spotID, vehicleNumber, now.Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID retrieves a reservation by its id.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FindOpenBySpot returns the open reservation for a spot, or nil when
// the spot has none. At most one open reservation can exist per spot —
// that is the invariant the booking CAS protects.
func (r *ReservationRepo) FindOpenBySpot(ctx context.Context, spotID uint64) (*model.Reservation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		 WHERE spot_id = ? AND leaving_at IS NULL LIMIT 1`, spotID)
	res, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// FindByUser returns a user's reservations ordered newest first. When
// activeOnly is set, completed reservations are filtered out.
func (r *ReservationRepo) FindByUser(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations WHERE user_id = ?`
	if activeOnly {
		q += ` AND leaving_at IS NULL`
	}
	q += ` ORDER BY reserved_at DESC`
	return r.queryMany(ctx, q, userID)
}

// FindAll returns every reservation, optionally filtered by confirmed
// payment state. Used by admin listings.
func (r *ReservationRepo) FindAll(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations`
	var args []interface{}
	if paymentConfirmed != nil {
		q += ` WHERE payment_confirmed = ?`
		args = append(args, *paymentConfirmed)
	}
	q += ` ORDER BY reserved_at DESC`
	return r.queryMany(ctx, q, args...)
}

func (r *ReservationRepo) queryMany(ctx context.Context, q string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkParked records the physical arrival time of the vehicle. The
// UPDATE is guarded by parked_at IS NULL so the timestamp can be set at
// most once; a second confirmation returns ErrAlreadyParked.
func (r *ReservationRepo) MarkParked(ctx context.Context, id uint64, t time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET parked_at = ? WHERE id = ? AND parked_at IS NULL AND leaving_at IS NULL`,
		t.UTC().Format("2006-01-02 15:04:05"), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// Zero rows: either missing, already parked, or already completed.
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cur.LeavingAt != nil {
		return ErrAlreadyCompleted
	}
	return ErrAlreadyParked
}

// CompleteAndFree finishes a reservation and frees its spot as one
// atomic unit: leaving_at, cost and payment_confirmed are written under
// a leaving_at IS NULL guard, and the spot flag is cleared in the same
// transaction. A concurrent second release sees zero rows from the
// guarded UPDATE and gets ErrAlreadyCompleted without touching the
// spot; no half-applied state is ever visible.
func (r *ReservationRepo) CompleteAndFree(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paymentConfirmed bool, paymentRef string) error {
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

	var ref sql.NullString
	if paymentRef != "" {
		ref = sql.NullString{String: paymentRef, Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET leaving_at = ?, cost = ?, payment_confirmed = ?, payment_ref = ?
		 WHERE id = ? AND leaving_at IS NULL`,
		end.UTC().Format("2006-01-02 15:04:05"), cost, paymentConfirmed, ref, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reservations WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrReservationNotFound
		}
		return ErrAlreadyCompleted
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE parking_spots SET occupied = 0 WHERE id = ?`, spotID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// HistoryEntry joins a completed reservation with its lot details for
// the user history listing. Views are assembled with explicit lookups
// instead of lazy object graphs.
type HistoryEntry struct {
	Reservation   model.Reservation
	PrimeLocation string
	Address       string
	PricePerHour  float64
}

// History returns the user's completed reservations with lot details,
// newest first.
func (r *ReservationRepo) History(ctx context.Context, userID uint64) ([]HistoryEntry, error) {
	const q = `SELECT r.id, r.user_id, r.spot_id, r.vehicle_number, r.reserved_at, r.parked_at,
	                  r.leaving_at, r.cost, r.payment_confirmed, r.payment_ref, r.created_at, r.updated_at,
	                  l.prime_location, l.address, l.price_per_hour
	           FROM reservations r
	           JOIN parking_spots s ON s.id = r.spot_id
	           JOIN parking_lots l ON l.id = s.lot_id
	           WHERE r.user_id = ? AND r.leaving_at IS NOT NULL
	           ORDER BY r.leaving_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var (
			e          HistoryEntry
			parkedAt   sql.NullTime
			leavingAt  sql.NullTime
			cost       sql.NullFloat64
			paymentRef sql.NullString
		)
		if err := rows.Scan(
			&e.Reservation.ID, &e.Reservation.UserID, &e.Reservation.SpotID,
			&e.Reservation.VehicleNumber, &e.Reservation.ReservedAt,
			&parkedAt, &leavingAt, &cost, &e.Reservation.PaymentConfirmed, &paymentRef,
			&e.Reservation.CreatedAt, &e.Reservation.UpdatedAt,
			&e.PrimeLocation, &e.Address, &e.PricePerHour,
		); err != nil {
			return nil, err
		}
		if parkedAt.Valid {
			t := parkedAt.Time
			e.Reservation.ParkedAt = &t
		}
		if leavingAt.Valid {
			t := leavingAt.Time
			e.Reservation.LeavingAt = &t
		}
		if cost.Valid {
			v := cost.Float64
			e.Reservation.Cost = &v
		}
		if paymentRef.Valid {
			s := paymentRef.String
			e.Reservation.PaymentRef = &s
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
