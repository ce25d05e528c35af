// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the reservation service to distinguish between failure
// scenarios. For example, ErrConflict signals that an operation cannot
// proceed due to dependent state (deleting a lot while spots are
// occupied), while the NotFound sentinels map to HTTP 404 responses.
package repository

import "errors"

// ErrConflict is returned when a delete or update cannot be performed
// because of conflicting state, such as attempting to delete a lot
// that still has occupied spots. Handlers should translate this into
// an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrLotNotFound is returned when a lot lookup yields no rows.
var ErrLotNotFound = errors.New("lot not found")

// ErrSpotNotFound is returned when a spot lookup yields no rows.
var ErrSpotNotFound = errors.New("spot not found")

// ErrReservationNotFound is returned when a reservation lookup yields no rows.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrAlreadyCompleted is returned when completing a reservation whose
// leaving timestamp is already set. The guarded UPDATE that detects it
// also makes a concurrent second release lose cleanly.
var ErrAlreadyCompleted = errors.New("reservation already completed")

// ErrAlreadyParked is returned when the parking confirmation runs twice
// for the same reservation.
var ErrAlreadyParked = errors.New("reservation already marked as parked")
