package model

import "time"

// Reservation binds a user, a spot and a vehicle for a parking
// interval. A reservation is OPEN while LeavingAt is nil and becomes
// COMPLETED once the release flow sets LeavingAt, Cost and frees the
// spot in a single transaction. Reservations are never deleted; they
// form the audit trail of the system.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – user who made the reservation.
//  SpotID           – spot being occupied (never changes after creation).
//  VehicleNumber    – registration number of the parked vehicle.
//  ReservedAt       – when the spot was booked (billing start).
//  ParkedAt         – when the vehicle physically arrived; set at most
//                     once by the occupy confirmation, nil before that.
//  LeavingAt        – when the reservation was released (nil while open).
//  Cost             – final charge, set exactly once at completion.
//  PaymentConfirmed – whether a payment was confirmed for the charge.
//  PaymentRef       – external payment identifier, if any.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Reservation struct {
	ID               uint64     // reservations.id
	UserID           uint64     // reservations.user_id
	SpotID           uint64     // reservations.spot_id
	VehicleNumber    string     // reservations.vehicle_number
	ReservedAt       time.Time  // reservations.reserved_at
	ParkedAt         *time.Time // reservations.parked_at (nullable)
	LeavingAt        *time.Time // reservations.leaving_at (nullable)
	Cost             *float64   // reservations.cost (nullable)
	PaymentConfirmed bool       // reservations.payment_confirmed
	PaymentRef       *string    // reservations.payment_ref (nullable)
	CreatedAt        time.Time  // reservations.created_at
	UpdatedAt        time.Time  // reservations.updated_at
}

// Open reports whether the reservation has not been completed yet.
func (r *Reservation) Open() bool { return r.LeavingAt == nil }
