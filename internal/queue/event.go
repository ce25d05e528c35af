// Package queue defines message payloads exchanged over the message broker
// plus the publisher and background consumer for the reservation.events
// queue.
package queue

// ReservationEvent is published whenever a reservation changes state.
// It carries enough information for downstream consumers to log or
// notify without querying the primary database.
type ReservationEvent struct {
	Type          string  `json:"type"` // reservation.booked | reservation.released
	ReservationID uint64  `json:"reservation_id"`
	UserID        uint64  `json:"user_id"`
	SpotID        uint64  `json:"spot_id"`
	LotID         uint64  `json:"lot_id"`
	LotLocation   string  `json:"lot_location"`
	VehicleNumber string  `json:"vehicle_number"`
	Amount        float64 `json:"amount,omitempty"` // final charge, only on release
	OccurredAt    string  `json:"occurred_at"`
}

// Event type values.
const (
	EventBooked   = "reservation.booked"
	EventReleased = "reservation.released"
)
