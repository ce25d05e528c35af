package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
)

// --- function-field mocks ---

type mockSpotStore struct {
	getByIDFn      func(ctx context.Context, id uint64) (*model.Spot, error)
	tryOccupyFn    func(ctx context.Context, id uint64) (bool, error)
	setAvailableFn func(ctx context.Context, id uint64) error
	listByLotFn    func(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error)
}

func (m *mockSpotStore) GetByID(ctx context.Context, id uint64) (*model.Spot, error) {
	return m.getByIDFn(ctx, id)
}
func (m *mockSpotStore) TryOccupy(ctx context.Context, id uint64) (bool, error) {
	return m.tryOccupyFn(ctx, id)
}
func (m *mockSpotStore) SetAvailable(ctx context.Context, id uint64) error {
	return m.setAvailableFn(ctx, id)
}
func (m *mockSpotStore) ListByLot(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error) {
	return m.listByLotFn(ctx, lotID, availableOnly)
}

type mockLotStore struct {
	getByIDFn func(ctx context.Context, id uint64) (*model.Lot, error)
}

func (m *mockLotStore) GetByID(ctx context.Context, id uint64) (*model.Lot, error) {
	return m.getByIDFn(ctx, id)
}

type mockReservationStore struct {
	createFn          func(ctx context.Context, userID, spotID uint64, vehicleNumber string) (*model.Reservation, error)
	getByIDFn         func(ctx context.Context, id uint64) (*model.Reservation, error)
	findOpenBySpotFn  func(ctx context.Context, spotID uint64) (*model.Reservation, error)
	findByUserFn      func(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error)
	findAllFn         func(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error)
	markParkedFn      func(ctx context.Context, id uint64, t time.Time) error
	completeAndFreeFn func(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paymentConfirmed bool, paymentRef string) error
	historyFn         func(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error)
}

func (m *mockReservationStore) Create(ctx context.Context, userID, spotID uint64, vehicleNumber string) (*model.Reservation, error) {
	return m.createFn(ctx, userID, spotID, vehicleNumber)
}
func (m *mockReservationStore) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return m.getByIDFn(ctx, id)
}
func (m *mockReservationStore) FindOpenBySpot(ctx context.Context, spotID uint64) (*model.Reservation, error) {
	return m.findOpenBySpotFn(ctx, spotID)
}
func (m *mockReservationStore) FindByUser(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error) {
	return m.findByUserFn(ctx, userID, activeOnly)
}
func (m *mockReservationStore) FindAll(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error) {
	return m.findAllFn(ctx, paymentConfirmed)
}
func (m *mockReservationStore) MarkParked(ctx context.Context, id uint64, t time.Time) error {
	return m.markParkedFn(ctx, id, t)
}
func (m *mockReservationStore) CompleteAndFree(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paymentConfirmed bool, paymentRef string) error {
	return m.completeAndFreeFn(ctx, id, spotID, end, cost, paymentConfirmed, paymentRef)
}
func (m *mockReservationStore) History(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error) {
	return m.historyFn(ctx, userID)
}

type mockPayments struct {
	confirmFn func(ctx context.Context, paymentID string, amount float64, reservationID uint64) (bool, error)
}

func (m *mockPayments) Confirm(ctx context.Context, paymentID string, amount float64, reservationID uint64) (bool, error) {
	return m.confirmFn(ctx, paymentID, amount, reservationID)
}

type recordingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uint64, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
}

// newTestManager wires a manager whose queue publisher is a no-op.
func newTestManager(spots SpotStore, lots LotStore, res ReservationStore, pay PaymentConfirmer, n Notifier) *ReservationManager {
	m := NewReservationManager(spots, lots, res, pay, n, nil)
	m.publish = func(ctx context.Context, ev queue.ReservationEvent) error { return nil }
	return m
}

func testLot() *model.Lot {
	return &model.Lot{ID: 7, PrimeLocation: "Central Mall", Address: "1 Main St", Pincode: "560001", PricePerHour: 50, NoOfSpots: 10}
}

// --- Book ---

func TestBook_Success(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn:   func(ctx context.Context, id uint64) (*model.Spot, error) { return &model.Spot{ID: id, LotID: 7}, nil },
		tryOccupyFn: func(ctx context.Context, id uint64) (bool, error) { return true, nil },
	}
	res := &mockReservationStore{
		createFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			return &model.Reservation{ID: 1, UserID: userID, SpotID: spotID, VehicleNumber: vehicle, ReservedAt: time.Now().UTC()}, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	notifier := &recordingNotifier{}

	m := newTestManager(spots, lots, res, &mockPayments{}, notifier)
	r, err := m.Book(context.Background(), 42, 3, "ka-01 ab 1234")

	require.NoError(t, err)
	assert.Equal(t, uint64(42), r.UserID)
	assert.Equal(t, uint64(3), r.SpotID)
	assert.Equal(t, "KA-01 AB 1234", r.VehicleNumber)
	assert.Contains(t, notifier.titles, "Spot reserved")
}

func TestBook_SpotAlreadyOccupied(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return &model.Spot{ID: id, LotID: 7, Occupied: true}, nil
		},
	}
	m := newTestManager(spots, &mockLotStore{}, &mockReservationStore{}, &mockPayments{}, nil)

	_, err := m.Book(context.Background(), 42, 3, "KA01AB1234")
	assert.ErrorIs(t, err, ErrSpotUnavailable)
}

func TestBook_LosesOccupancyRace(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn:   func(ctx context.Context, id uint64) (*model.Spot, error) { return &model.Spot{ID: id, LotID: 7}, nil },
		tryOccupyFn: func(ctx context.Context, id uint64) (bool, error) { return false, nil },
	}
	m := newTestManager(spots, &mockLotStore{}, &mockReservationStore{}, &mockPayments{}, nil)

	_, err := m.Book(context.Background(), 42, 3, "KA01AB1234")
	assert.ErrorIs(t, err, ErrSpotUnavailable)
}

func TestBook_SpotNotFound(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return nil, repository.ErrSpotNotFound
		},
	}
	m := newTestManager(spots, &mockLotStore{}, &mockReservationStore{}, &mockPayments{}, nil)

	_, err := m.Book(context.Background(), 42, 99, "KA01AB1234")
	assert.ErrorIs(t, err, repository.ErrSpotNotFound)
}

func TestBook_RevertsSpotWhenCreateFails(t *testing.T) {
	reverted := false
	spots := &mockSpotStore{
		getByIDFn:   func(ctx context.Context, id uint64) (*model.Spot, error) { return &model.Spot{ID: id, LotID: 7}, nil },
		tryOccupyFn: func(ctx context.Context, id uint64) (bool, error) { return true, nil },
		setAvailableFn: func(ctx context.Context, id uint64) error {
			reverted = true
			return nil
		},
	}
	res := &mockReservationStore{
		createFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			return nil, errors.New("insert failed")
		},
	}
	m := newTestManager(spots, &mockLotStore{}, res, &mockPayments{}, nil)

	_, err := m.Book(context.Background(), 42, 3, "KA01AB1234")
	assert.Error(t, err)
	assert.True(t, reverted, "spot must be given back after a failed insert")
}

func TestBook_InvalidVehicleNumber(t *testing.T) {
	m := newTestManager(&mockSpotStore{}, &mockLotStore{}, &mockReservationStore{}, &mockPayments{}, nil)

	for _, bad := range []string{"", "   ", "plate#with$symbols", "WAY-TOO-LONG-VEHICLE-NUMBER-123456"} {
		_, err := m.Book(context.Background(), 42, 3, bad)
		assert.ErrorIs(t, err, ErrInvalidVehicleNumber, "vehicle %q", bad)
	}
}

// --- BookInLot ---

func TestBookInLot_SkipsLostRaces(t *testing.T) {
	// First candidate is snatched between listing and occupying, the
	// second wins.
	spots := &mockSpotStore{
		listByLotFn: func(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error) {
			return []model.Spot{{ID: 1, LotID: lotID}, {ID: 2, LotID: lotID}}, nil
		},
		tryOccupyFn: func(ctx context.Context, id uint64) (bool, error) { return id == 2, nil },
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	res := &mockReservationStore{
		createFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			return &model.Reservation{ID: 9, UserID: userID, SpotID: spotID, VehicleNumber: vehicle, ReservedAt: time.Now().UTC()}, nil
		},
	}
	m := newTestManager(spots, lots, res, &mockPayments{}, nil)

	r, err := m.BookInLot(context.Background(), 42, 7, "KA01AB1234")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.SpotID)
}

func TestBookInLot_NoSpotAvailable(t *testing.T) {
	spots := &mockSpotStore{
		listByLotFn: func(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error) {
			return nil, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	m := newTestManager(spots, lots, &mockReservationStore{}, &mockPayments{}, nil)

	_, err := m.BookInLot(context.Background(), 42, 7, "KA01AB1234")
	assert.ErrorIs(t, err, ErrNoSpotAvailable)
}

func TestBookInLot_LotNotFound(t *testing.T) {
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) {
		return nil, repository.ErrLotNotFound
	}}
	m := newTestManager(&mockSpotStore{}, lots, &mockReservationStore{}, &mockPayments{}, nil)

	_, err := m.BookInLot(context.Background(), 42, 99, "KA01AB1234")
	assert.ErrorIs(t, err, repository.ErrLotNotFound)
}

// --- MarkOccupied ---

func TestMarkOccupied_OwnershipEnforced(t *testing.T) {
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return &model.Reservation{ID: id, UserID: 1, SpotID: 3, ReservedAt: time.Now().UTC()}, nil
		},
	}
	m := newTestManager(&mockSpotStore{}, &mockLotStore{}, res, &mockPayments{}, nil)

	err := m.MarkOccupied(context.Background(), 2, 5)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestMarkOccupied_AlreadyParkedPassesThrough(t *testing.T) {
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return &model.Reservation{ID: id, UserID: 1, SpotID: 3, ReservedAt: time.Now().UTC()}, nil
		},
		markParkedFn: func(ctx context.Context, id uint64, ts time.Time) error {
			return repository.ErrAlreadyParked
		},
	}
	m := newTestManager(&mockSpotStore{}, &mockLotStore{}, res, &mockPayments{}, nil)

	err := m.MarkOccupied(context.Background(), 1, 5)
	assert.ErrorIs(t, err, repository.ErrAlreadyParked)
}

// --- Release ---

func openReservation(userID uint64, age time.Duration) *model.Reservation {
	return &model.Reservation{
		ID:            5,
		UserID:        userID,
		SpotID:        3,
		VehicleNumber: "KA01AB1234",
		ReservedAt:    time.Now().UTC().Add(-age),
	}
}

func TestRelease_ComputesFeeAndCommits(t *testing.T) {
	var gotCost float64
	var gotPaid bool
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return &model.Spot{ID: id, LotID: 7, Occupied: true}, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return openReservation(42, 2*time.Hour), nil
		},
		completeAndFreeFn: func(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paid bool, ref string) error {
			gotCost, gotPaid = cost, paid
			return nil
		},
	}
	pay := &mockPayments{confirmFn: func(ctx context.Context, paymentID string, amount float64, rid uint64) (bool, error) {
		return true, nil
	}}
	notifier := &recordingNotifier{}
	m := newTestManager(spots, lots, res, pay, notifier)

	amount, err := m.Release(context.Background(), 42, 5, "MOCK_abc")
	require.NoError(t, err)

	// Two hours at 50/h. The tiny extra elapsed during the test rounds
	// away at two decimals.
	assert.InDelta(t, 100.0, amount, 0.01)
	assert.Equal(t, amount, gotCost)
	assert.True(t, gotPaid)
	assert.Contains(t, notifier.titles, "Reservation completed")
}

func TestRelease_PaymentRejectedLeavesReservationOpen(t *testing.T) {
	committed := false
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return &model.Spot{ID: id, LotID: 7, Occupied: true}, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return openReservation(42, time.Hour), nil
		},
		completeAndFreeFn: func(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paid bool, ref string) error {
			committed = true
			return nil
		},
	}
	pay := &mockPayments{confirmFn: func(ctx context.Context, paymentID string, amount float64, rid uint64) (bool, error) {
		return false, nil
	}}
	m := newTestManager(spots, lots, res, pay, nil)

	_, err := m.Release(context.Background(), 42, 5, "bogus")
	assert.ErrorIs(t, err, ErrPaymentRejected)
	assert.False(t, committed, "rejected payment must not complete the reservation")
}

func TestRelease_WithoutPaymentID(t *testing.T) {
	var gotPaid bool
	confirmCalled := false
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return &model.Spot{ID: id, LotID: 7, Occupied: true}, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return openReservation(42, time.Hour), nil
		},
		completeAndFreeFn: func(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paid bool, ref string) error {
			gotPaid = paid
			return nil
		},
	}
	pay := &mockPayments{confirmFn: func(ctx context.Context, paymentID string, amount float64, rid uint64) (bool, error) {
		confirmCalled = true
		return true, nil
	}}
	m := newTestManager(spots, lots, res, pay, nil)

	_, err := m.Release(context.Background(), 42, 5, "")
	require.NoError(t, err)
	assert.False(t, confirmCalled, "no payment id means no gateway call")
	assert.False(t, gotPaid)
}

func TestRelease_AlreadyCompleted(t *testing.T) {
	done := time.Now().UTC()
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			r := openReservation(42, time.Hour)
			r.LeavingAt = &done
			return r, nil
		},
	}
	m := newTestManager(&mockSpotStore{}, &mockLotStore{}, res, &mockPayments{}, nil)

	_, err := m.Release(context.Background(), 42, 5, "MOCK_abc")
	assert.ErrorIs(t, err, repository.ErrAlreadyCompleted)
}

func TestRelease_NotOwner(t *testing.T) {
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return openReservation(1, time.Hour), nil
		},
	}
	m := newTestManager(&mockSpotStore{}, &mockLotStore{}, res, &mockPayments{}, nil)

	_, err := m.Release(context.Background(), 2, 5, "MOCK_abc")
	assert.ErrorIs(t, err, ErrNotOwner)
}

// --- Quote ---

func TestQuote_CeilsToWholeHours(t *testing.T) {
	reservedAt := time.Now().UTC().Add(-90 * time.Minute)
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return &model.Spot{ID: id, LotID: 7, Occupied: true}, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	res := &mockReservationStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
			return &model.Reservation{ID: id, UserID: 42, SpotID: 3, ReservedAt: reservedAt}, nil
		},
	}
	m := newTestManager(spots, lots, res, &mockPayments{}, nil)

	// 90 minutes at 50/hr quotes as two full hours; the fractional
	// charge only applies at release.
	amount, err := m.Quote(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, amount)
}

// --- OpenBySpot ---

func TestOpenBySpot_ReturnsHolder(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) {
			return &model.Spot{ID: id, LotID: 7, Occupied: true}, nil
		},
	}
	res := &mockReservationStore{
		findOpenBySpotFn: func(ctx context.Context, spotID uint64) (*model.Reservation, error) {
			return &model.Reservation{ID: 11, UserID: 42, SpotID: spotID, VehicleNumber: "KA01AB1234"}, nil
		},
	}
	m := newTestManager(spots, &mockLotStore{}, res, &mockPayments{}, nil)

	r, err := m.OpenBySpot(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), r.ID)
	assert.Equal(t, uint64(42), r.UserID)
}

func TestOpenBySpot_FreeSpot(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) { return &model.Spot{ID: id, LotID: 7}, nil },
	}
	res := &mockReservationStore{
		findOpenBySpotFn: func(ctx context.Context, spotID uint64) (*model.Reservation, error) { return nil, nil },
	}
	m := newTestManager(spots, &mockLotStore{}, res, &mockPayments{}, nil)

	_, err := m.OpenBySpot(context.Background(), 3)
	assert.ErrorIs(t, err, repository.ErrReservationNotFound)
}

func TestOpenBySpot_SpotNotFound(t *testing.T) {
	spots := &mockSpotStore{
		getByIDFn: func(ctx context.Context, id uint64) (*model.Spot, error) { return nil, repository.ErrSpotNotFound },
	}
	m := newTestManager(spots, &mockLotStore{}, &mockReservationStore{}, &mockPayments{}, nil)

	_, err := m.OpenBySpot(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrSpotNotFound)
}

// --- concurrency ---

// memorySpots is a mutex-guarded spot table whose TryOccupy has the
// same check-and-set semantics as the SQL conditional update.
type memorySpots struct {
	mu       sync.Mutex
	occupied map[uint64]bool
}

func (s *memorySpots) GetByID(ctx context.Context, id uint64) (*model.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.Spot{ID: id, LotID: 7, Occupied: s.occupied[id]}, nil
}
func (s *memorySpots) TryOccupy(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.occupied[id] {
		return false, nil
	}
	s.occupied[id] = true
	return true, nil
}
func (s *memorySpots) SetAvailable(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occupied[id] = false
	return nil
}
func (s *memorySpots) ListByLot(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Spot
	for id, occ := range s.occupied {
		if availableOnly && occ {
			continue
		}
		out = append(out, model.Spot{ID: id, LotID: lotID, Occupied: occ})
	}
	return out, nil
}

func TestSetAvailable_IdempotentOnFreeSpot(t *testing.T) {
	spots := &memorySpots{occupied: map[uint64]bool{3: false}}

	// Freeing a spot that is already free succeeds without error and
	// leaves it free. The compensation path in Book relies on this
	// when the occupancy update and the revert race.
	require.NoError(t, spots.SetAvailable(context.Background(), 3))
	require.NoError(t, spots.SetAvailable(context.Background(), 3))

	s, err := spots.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, s.Occupied)
}

func TestBook_ConcurrentRequestsOneWinner(t *testing.T) {
	spots := &memorySpots{occupied: map[uint64]bool{3: false}}
	var created sync.Map
	res := &mockReservationStore{
		createFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			created.Store(userID, true)
			return &model.Reservation{ID: userID, UserID: userID, SpotID: spotID, VehicleNumber: vehicle, ReservedAt: time.Now().UTC()}, nil
		},
	}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	m := newTestManager(spots, lots, res, &mockPayments{}, nil)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Book(context.Background(), uint64(i+1), 3, "KA01AB1234")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrSpotUnavailable)
		}
	}
	assert.Equal(t, 1, winners, "exactly one booking may win the spot")
}

// memoryReservations completes at most once, mirroring the guarded
// UPDATE in the SQL store.
type memoryReservations struct {
	mockReservationStore
	mu        sync.Mutex
	completed bool
}

func (s *memoryReservations) CompleteAndFree(ctx context.Context, id, spotID uint64, end time.Time, cost float64, paid bool, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return repository.ErrAlreadyCompleted
	}
	s.completed = true
	return nil
}

func TestRelease_ConcurrentReleasesOneWinner(t *testing.T) {
	spots := &memorySpots{occupied: map[uint64]bool{3: true}}
	lots := &mockLotStore{getByIDFn: func(ctx context.Context, id uint64) (*model.Lot, error) { return testLot(), nil }}
	res := &memoryReservations{
		mockReservationStore: mockReservationStore{
			getByIDFn: func(ctx context.Context, id uint64) (*model.Reservation, error) {
				return openReservation(42, time.Hour), nil
			},
		},
	}
	// Every worker carries an id the gateway accepts, so racers can
	// all pass payment confirmation; the guarded commit must still let
	// exactly one through.
	var confirms int64
	pay := &mockPayments{
		confirmFn: func(ctx context.Context, paymentID string, amount float64, reservationID uint64) (bool, error) {
			atomic.AddInt64(&confirms, 1)
			return true, nil
		},
	}
	m := newTestManager(spots, lots, res, pay, nil)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Release(context.Background(), 42, 5, "MOCK_123")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, repository.ErrAlreadyCompleted)
		}
	}
	assert.Equal(t, 1, winners, "exactly one release may complete the reservation")
	assert.GreaterOrEqual(t, confirms, int64(1), "the winner must have confirmed its payment")
}
