package model

import "time"

// Spot is a single parking space inside a lot. The Occupied flag is
// the authoritative availability marker: it is flipped only through
// the reservation flow and must always agree with the existence of
// exactly one open reservation for the spot.
type Spot struct {
	ID        uint64    // parking_spots.id
	LotID     uint64    // parking_spots.lot_id (immutable after creation)
	Occupied  bool      // parking_spots.occupied
	CreatedAt time.Time // parking_spots.created_at
	UpdatedAt time.Time // parking_spots.updated_at
}
