// Package service holds the business rules that sit between the HTTP
// handlers and the repositories: spot allocation, the reservation
// lifecycle, fee computation and payment confirmation. Handlers stay
// thin and translate the sentinel errors defined here into HTTP
// status codes.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
)

// Sentinel errors surfaced by the reservation manager. Repository
// sentinels (not-found, already-completed, already-parked) pass
// through unchanged.
var (
	// ErrSpotUnavailable means the requested spot exists but was taken,
	// either before the request arrived or by a concurrent booking that
	// won the occupancy update.
	ErrSpotUnavailable = errors.New("spot is not available")

	// ErrNoSpotAvailable means a lot-level booking found no free spot
	// to allocate.
	ErrNoSpotAvailable = errors.New("no available spot in lot")

	// ErrPaymentRejected means the payment collaborator declined the
	// charge. The reservation stays open and the spot stays occupied.
	ErrPaymentRejected = errors.New("payment was rejected")

	// ErrInvalidVehicleNumber means the supplied vehicle number is
	// empty or malformed.
	ErrInvalidVehicleNumber = errors.New("invalid vehicle number")

	// ErrNotOwner means the reservation belongs to a different user.
	ErrNotOwner = errors.New("reservation belongs to another user")
)

// SpotStore is the spot persistence surface the manager depends on.
type SpotStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Spot, error)
	TryOccupy(ctx context.Context, id uint64) (bool, error)
	SetAvailable(ctx context.Context, id uint64) error
	ListByLot(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error)
}

// LotStore resolves lots for rate lookup and event payloads.
type LotStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Lot, error)
}

// ReservationStore is the reservation persistence surface.
type ReservationStore interface {
	Create(ctx context.Context, userID, spotID uint64, vehicleNumber string) (*model.Reservation, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	FindOpenBySpot(ctx context.Context, spotID uint64) (*model.Reservation, error)
	FindByUser(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error)
	FindAll(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error)
	MarkParked(ctx context.Context, id uint64, t time.Time) error
	CompleteAndFree(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paymentConfirmed bool, paymentRef string) error
	History(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error)
}

// PaymentConfirmer verifies a payment before a reservation completes.
// Confirm is verification only, it must not capture funds: the manager
// may call it from a release that then loses the completion race, and
// the loser's confirmation has no effect.
type PaymentConfirmer interface {
	Confirm(ctx context.Context, paymentID string, amount float64, reservationID uint64) (bool, error)
}

// CacheInvalidator drops cached responses for an entity after a write.
// The HTTP cache middleware provides the production implementation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tags ...string)
}

// ReservationManager implements the reservation lifecycle: booking a
// specific spot, auto-allocating within a lot, confirming arrival and
// releasing with payment. Double-booking is prevented by the
// conditional occupancy update in the spot store, not by any lock
// held here, so the manager itself is safe for concurrent use.
type ReservationManager struct {
	spots        SpotStore
	lots         LotStore
	reservations ReservationStore
	payments     PaymentConfirmer
	notifier     Notifier
	cache        CacheInvalidator
	publish      func(ctx context.Context, ev queue.ReservationEvent) error
}

func NewReservationManager(spots SpotStore, lots LotStore, reservations ReservationStore, payments PaymentConfirmer, notifier Notifier, cache CacheInvalidator) *ReservationManager {
	return &ReservationManager{
		spots:        spots,
		lots:         lots,
		reservations: reservations,
		payments:     payments,
		notifier:     notifier,
		cache:        cache,
		publish:      queue.PublishReservationEvent,
	}
}

// normalizeVehicleNumber trims and upper-cases a vehicle number and
// validates its shape. Plates are free-form across regions, so the
// check is deliberately loose: non-empty, at most 20 characters,
// letters, digits, spaces and dashes only.
func normalizeVehicleNumber(v string) (string, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" || len(v) > 20 {
		return "", ErrInvalidVehicleNumber
	}
	for _, r := range v {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == ' ' || r == '-':
		default:
			return "", ErrInvalidVehicleNumber
		}
	}
	return v, nil
}

// Book reserves a specific spot for the user. The occupancy update is
// the race arbiter: of two concurrent requests for the same spot
// exactly one sees a row change, the other gets ErrSpotUnavailable.
// If the reservation row cannot be written after the spot was taken,
// the spot is reverted to available so no spot leaks.
func (m *ReservationManager) Book(ctx context.Context, userID, spotID uint64, vehicleNumber string) (*model.Reservation, error) {
	vehicle, err := normalizeVehicleNumber(vehicleNumber)
	if err != nil {
		return nil, err
	}

	spot, err := m.spots.GetByID(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if spot.Occupied {
		return nil, ErrSpotUnavailable
	}

	won, err := m.spots.TryOccupy(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrSpotUnavailable
	}

	res, err := m.reservations.Create(ctx, userID, spotID, vehicle)
	if err != nil {
		// Compensate: give the spot back so a failed insert does not
		// strand it as occupied forever.
		if revErr := m.spots.SetAvailable(ctx, spotID); revErr != nil {
			log.Printf("reservation: failed to revert spot %d after create error: %v", spotID, revErr)
		}
		return nil, err
	}

	m.afterBooked(ctx, res, spot.LotID)
	return res, nil
}

// BookInLot reserves any free spot in the lot for the user. Candidates
// are tried in order; losing the occupancy race on one spot moves on
// to the next instead of failing the request.
func (m *ReservationManager) BookInLot(ctx context.Context, userID, lotID uint64, vehicleNumber string) (*model.Reservation, error) {
	vehicle, err := normalizeVehicleNumber(vehicleNumber)
	if err != nil {
		return nil, err
	}

	if _, err := m.lots.GetByID(ctx, lotID); err != nil {
		return nil, err
	}

	candidates, err := m.spots.ListByLot(ctx, lotID, true)
	if err != nil {
		return nil, err
	}
	for _, spot := range candidates {
		won, err := m.spots.TryOccupy(ctx, spot.ID)
		if err != nil {
			return nil, err
		}
		if !won {
			continue
		}

		res, err := m.reservations.Create(ctx, userID, spot.ID, vehicle)
		if err != nil {
			if revErr := m.spots.SetAvailable(ctx, spot.ID); revErr != nil {
				log.Printf("reservation: failed to revert spot %d after create error: %v", spot.ID, revErr)
			}
			return nil, err
		}

		m.afterBooked(ctx, res, lotID)
		return res, nil
	}
	return nil, ErrNoSpotAvailable
}

// MarkOccupied records that the user's vehicle has arrived at the
// spot. Running it twice yields ErrAlreadyParked; running it after
// release yields ErrAlreadyCompleted.
func (m *ReservationManager) MarkOccupied(ctx context.Context, userID, reservationID uint64) error {
	res, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.UserID != userID {
		return ErrNotOwner
	}
	return m.reservations.MarkParked(ctx, reservationID, time.Now().UTC())
}

// Release ends the user's reservation: it computes the charge at the
// lot's current hourly rate, confirms the payment when a payment
// identifier is supplied, and commits the end timestamp, the cost,
// the payment flag and the spot's availability as one unit. A
// rejected payment aborts before the commit, leaving the reservation
// open and the spot occupied. The final charge is returned.
func (m *ReservationManager) Release(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error) {
	res, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	if res.UserID != userID {
		return 0, ErrNotOwner
	}
	if !res.Open() {
		return 0, repository.ErrAlreadyCompleted
	}

	spot, err := m.spots.GetByID(ctx, res.SpotID)
	if err != nil {
		return 0, err
	}
	lot, err := m.lots.GetByID(ctx, spot.LotID)
	if err != nil {
		return 0, err
	}

	end := time.Now().UTC()
	amount := ComputeFee(res.ReservedAt, end, lot.PricePerHour)

	// Two racing releases can both reach Confirm; the guarded commit
	// below lets only one through, and Confirm never moves money, so
	// the loser's confirmation is inert.
	paymentConfirmed := false
	if paymentID != "" {
		ok, err := m.payments.Confirm(ctx, paymentID, amount, reservationID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrPaymentRejected
		}
		paymentConfirmed = true
	}

	if err := m.reservations.CompleteAndFree(ctx, reservationID, res.SpotID, end, amount, paymentConfirmed, paymentID); err != nil {
		return 0, err
	}

	m.afterReleased(ctx, res, lot, amount, end)
	return amount, nil
}

// Quote returns the amount a payment order placed now should charge:
// the elapsed time rounded up to whole hours at the lot's current
// rate, so a prepaid order never undercuts the final fee. The
// authoritative fractional charge is computed at release. No state
// changes.
func (m *ReservationManager) Quote(ctx context.Context, userID, reservationID uint64) (float64, error) {
	res, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	if res.UserID != userID {
		return 0, ErrNotOwner
	}
	if !res.Open() {
		return 0, repository.ErrAlreadyCompleted
	}
	spot, err := m.spots.GetByID(ctx, res.SpotID)
	if err != nil {
		return 0, err
	}
	lot, err := m.lots.GetByID(ctx, spot.LotID)
	if err != nil {
		return 0, err
	}
	return EstimateFee(res.ReservedAt, time.Now().UTC(), lot.PricePerHour), nil
}

// GetOwned returns the reservation only when it belongs to the user.
func (m *ReservationManager) GetOwned(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error) {
	res, err := m.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != userID {
		return nil, ErrNotOwner
	}
	return res, nil
}

// OpenBySpot returns the open reservation currently holding the spot.
// ErrReservationNotFound means the spot exists but is free.
func (m *ReservationManager) OpenBySpot(ctx context.Context, spotID uint64) (*model.Reservation, error) {
	if _, err := m.spots.GetByID(ctx, spotID); err != nil {
		return nil, err
	}
	res, err := m.reservations.FindOpenBySpot(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, repository.ErrReservationNotFound
	}
	return res, nil
}

// ByUser returns a user's reservations, optionally only the open ones.
func (m *ReservationManager) ByUser(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error) {
	return m.reservations.FindByUser(ctx, userID, activeOnly)
}

// History returns a user's completed reservations joined with their
// spot and lot details, newest first.
func (m *ReservationManager) History(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error) {
	return m.reservations.History(ctx, userID)
}

// All returns every reservation, optionally filtered on the payment
// flag. Admin use only; the handler enforces the role.
func (m *ReservationManager) All(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error) {
	return m.reservations.FindAll(ctx, paymentConfirmed)
}

// afterBooked runs the best-effort side effects of a successful
// booking: cache invalidation, in-app notification and the broker
// event. None of them can fail the booking.
func (m *ReservationManager) afterBooked(ctx context.Context, res *model.Reservation, lotID uint64) {
	if m.cache != nil {
		m.cache.Invalidate(ctx, "lots", "spots")
	}

	location := ""
	if lot, err := m.lots.GetByID(ctx, lotID); err == nil {
		location = lot.PrimeLocation
	}

	if m.notifier != nil {
		m.notifier.Notify(ctx, res.UserID, "Spot reserved",
			"Your parking spot has been reserved. Vehicle: "+res.VehicleNumber)
	}

	if err := m.publish(ctx, queue.ReservationEvent{
		Type:          queue.EventBooked,
		ReservationID: res.ID,
		UserID:        res.UserID,
		SpotID:        res.SpotID,
		LotID:         lotID,
		LotLocation:   location,
		VehicleNumber: res.VehicleNumber,
		OccurredAt:    res.ReservedAt.Format("2006-01-02 15:04:05"),
	}); err != nil {
		log.Printf("reservation: publish booked event for %d failed: %v", res.ID, err)
	}
}

func (m *ReservationManager) afterReleased(ctx context.Context, res *model.Reservation, lot *model.Lot, amount float64, end time.Time) {
	if m.cache != nil {
		m.cache.Invalidate(ctx, "lots", "spots")
	}

	if m.notifier != nil {
		m.notifier.Notify(ctx, res.UserID, "Reservation completed",
			"Your parking reservation has ended. Thank you for parking with us.")
	}

	if err := m.publish(ctx, queue.ReservationEvent{
		Type:          queue.EventReleased,
		ReservationID: res.ID,
		UserID:        res.UserID,
		SpotID:        res.SpotID,
		LotID:         lot.ID,
		LotLocation:   lot.PrimeLocation,
		VehicleNumber: res.VehicleNumber,
		Amount:        amount,
		OccurredAt:    end.Format("2006-01-02 15:04:05"),
	}); err != nil {
		log.Printf("reservation: publish released event for %d failed: %v", res.ID, err)
	}
}
