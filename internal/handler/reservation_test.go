package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// --- Mock ReservationService ---

type mockReservationService struct {
	bookFn         func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error)
	bookInLotFn    func(ctx context.Context, userID, lotID uint64, vehicle string) (*model.Reservation, error)
	markOccupiedFn func(ctx context.Context, userID, reservationID uint64) error
	releaseFn      func(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error)
	quoteFn        func(ctx context.Context, userID, reservationID uint64) (float64, error)
	getOwnedFn     func(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error)
	openBySpotFn   func(ctx context.Context, spotID uint64) (*model.Reservation, error)
	byUserFn       func(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error)
	historyFn      func(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error)
	allFn          func(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error)
}

func (m *mockReservationService) Book(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
	return m.bookFn(ctx, userID, spotID, vehicle)
}
func (m *mockReservationService) BookInLot(ctx context.Context, userID, lotID uint64, vehicle string) (*model.Reservation, error) {
	return m.bookInLotFn(ctx, userID, lotID, vehicle)
}
func (m *mockReservationService) MarkOccupied(ctx context.Context, userID, reservationID uint64) error {
	return m.markOccupiedFn(ctx, userID, reservationID)
}
func (m *mockReservationService) Release(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error) {
	return m.releaseFn(ctx, userID, reservationID, paymentID)
}
func (m *mockReservationService) Quote(ctx context.Context, userID, reservationID uint64) (float64, error) {
	return m.quoteFn(ctx, userID, reservationID)
}
func (m *mockReservationService) GetOwned(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error) {
	return m.getOwnedFn(ctx, userID, reservationID)
}
func (m *mockReservationService) OpenBySpot(ctx context.Context, spotID uint64) (*model.Reservation, error) {
	return m.openBySpotFn(ctx, spotID)
}
func (m *mockReservationService) ByUser(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error) {
	return m.byUserFn(ctx, userID, activeOnly)
}
func (m *mockReservationService) History(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error) {
	return m.historyFn(ctx, userID)
}
func (m *mockReservationService) All(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error) {
	return m.allFn(ctx, paymentConfirmed)
}

// newContext builds an echo context with an authenticated user, the
// way JWTAuth would leave it.
func newContext(t *testing.T, method, target, body string, userID uint64) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != 0 {
		c.Set("user_id", userID)
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// --- BookSpot ---

func TestBookSpot_Created(t *testing.T) {
	svc := &mockReservationService{
		bookFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			return &model.Reservation{ID: 11, UserID: userID, SpotID: spotID, VehicleNumber: "KA01AB1234", ReservedAt: time.Now().UTC()}, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/spots/3/reservations", `{"vehicle_number":"ka01ab1234"}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.BookSpot(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(11), body["id"])
	assert.Equal(t, "OPEN", body["status"])
}

func TestBookSpot_Conflict(t *testing.T) {
	svc := &mockReservationService{
		bookFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			return nil, service.ErrSpotUnavailable
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/spots/3/reservations", `{"vehicle_number":"KA01AB1234"}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.BookSpot(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBookSpot_SpotNotFound(t *testing.T) {
	svc := &mockReservationService{
		bookFn: func(ctx context.Context, userID, spotID uint64, vehicle string) (*model.Reservation, error) {
			return nil, repository.ErrSpotNotFound
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/spots/99/reservations", `{"vehicle_number":"KA01AB1234"}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("99")

	require.NoError(t, h.BookSpot(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookSpot_Unauthenticated(t *testing.T) {
	h := NewReservationHandler(&mockReservationService{})

	c, rec := newContext(t, http.MethodPost, "/v1/spots/3/reservations", `{"vehicle_number":"KA01AB1234"}`, 0)
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.BookSpot(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- BookInLot ---

func TestBookInLot_Created(t *testing.T) {
	svc := &mockReservationService{
		bookInLotFn: func(ctx context.Context, userID, lotID uint64, vehicle string) (*model.Reservation, error) {
			assert.Equal(t, uint64(7), lotID)
			return &model.Reservation{ID: 12, UserID: userID, SpotID: 5, VehicleNumber: "KA01AB1234", ReservedAt: time.Now().UTC()}, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/reservations", `{"lot_id":7,"vehicle_number":"KA01AB1234"}`, 42)

	require.NoError(t, h.BookInLot(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBookInLot_MissingLot(t *testing.T) {
	h := NewReservationHandler(&mockReservationService{})

	c, rec := newContext(t, http.MethodPost, "/v1/reservations", `{"vehicle_number":"KA01AB1234"}`, 42)

	require.NoError(t, h.BookInLot(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookInLot_LotFull(t *testing.T) {
	svc := &mockReservationService{
		bookInLotFn: func(ctx context.Context, userID, lotID uint64, vehicle string) (*model.Reservation, error) {
			return nil, service.ErrNoSpotAvailable
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/reservations", `{"lot_id":7,"vehicle_number":"KA01AB1234"}`, 42)

	require.NoError(t, h.BookInLot(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- Occupy ---

func TestOccupy_AlreadyParked(t *testing.T) {
	svc := &mockReservationService{
		markOccupiedFn: func(ctx context.Context, userID, reservationID uint64) error {
			return repository.ErrAlreadyParked
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/reservations/5/occupy", "", 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Occupy(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- Release ---

func TestRelease_OK(t *testing.T) {
	svc := &mockReservationService{
		releaseFn: func(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error) {
			assert.Equal(t, "MOCK_abc", paymentID)
			return 100.0, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/reservations/5/release", `{"payment_id":"MOCK_abc"}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Release(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, 100.0, body["amount"])
	assert.Equal(t, true, body["payment_confirmed"])
	assert.True(t, strings.HasPrefix(body["receipt_id"].(string), "RCP_"))
}

func TestRelease_PaymentRejected(t *testing.T) {
	svc := &mockReservationService{
		releaseFn: func(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error) {
			return 0, service.ErrPaymentRejected
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/reservations/5/release", `{"payment_id":"bogus"}`, 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Release(c))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestRelease_AlreadyCompleted(t *testing.T) {
	svc := &mockReservationService{
		releaseFn: func(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error) {
			return 0, repository.ErrAlreadyCompleted
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodPost, "/v1/reservations/5/release", "", 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Release(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// --- List / Get ---

func TestList_ActiveFilterForwarded(t *testing.T) {
	var gotActive bool
	svc := &mockReservationService{
		byUserFn: func(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error) {
			gotActive = activeOnly
			return []model.Reservation{{ID: 1, UserID: userID, SpotID: 2, ReservedAt: time.Now().UTC()}}, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodGet, "/v1/reservations?active=true", "", 42)

	require.NoError(t, h.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotActive)
}

func TestGet_CompletedReservationView(t *testing.T) {
	done := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cost := 100.0
	svc := &mockReservationService{
		getOwnedFn: func(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error) {
			return &model.Reservation{
				ID: 5, UserID: userID, SpotID: 3, VehicleNumber: "KA01AB1234",
				ReservedAt: done.Add(-2 * time.Hour), LeavingAt: &done, Cost: &cost, PaymentConfirmed: true,
			}, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodGet, "/v1/reservations/5", "", 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, 100.0, body["cost"])
	assert.Equal(t, "2025-06-01 12:00:00", body["leaving_at"])
}

func TestGet_ForeignReservation(t *testing.T) {
	svc := &mockReservationService{
		getOwnedFn: func(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error) {
			return nil, service.ErrNotOwner
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodGet, "/v1/reservations/5", "", 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Admin spot lookup ---

func TestSpotReservation_Occupied(t *testing.T) {
	svc := &mockReservationService{
		openBySpotFn: func(ctx context.Context, spotID uint64) (*model.Reservation, error) {
			return &model.Reservation{ID: 11, UserID: 42, SpotID: spotID, VehicleNumber: "KA01AB1234", ReservedAt: time.Now().UTC()}, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodGet, "/v1/spots/3/reservation", "", 1)
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.SpotReservation(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(42), body["user_id"])
	assert.Equal(t, "OPEN", body["status"])
}

func TestSpotReservation_FreeSpot(t *testing.T) {
	svc := &mockReservationService{
		openBySpotFn: func(ctx context.Context, spotID uint64) (*model.Reservation, error) {
			return nil, repository.ErrReservationNotFound
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodGet, "/v1/spots/3/reservation", "", 1)
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, h.SpotReservation(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Admin list ---

func TestListAll_PaymentFilter(t *testing.T) {
	var gotFilter *bool
	svc := &mockReservationService{
		allFn: func(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error) {
			gotFilter = paymentConfirmed
			return nil, nil
		},
	}
	h := NewReservationHandler(svc)

	c, rec := newContext(t, http.MethodGet, "/v1/reservations/all?payment_confirmed=false", "", 1)

	require.NoError(t, h.ListAll(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotFilter)
	assert.False(t, *gotFilter)
}

// --- Payment preview ---

func TestPaymentOrder_QuotesInSmallestUnit(t *testing.T) {
	svc := &mockReservationService{
		quoteFn: func(ctx context.Context, userID, reservationID uint64) (float64, error) {
			return 150.0, nil
		},
	}
	h := NewPaymentHandler(svc, service.NewMockPayments())

	c, rec := newContext(t, http.MethodPost, "/v1/reservations/5/payment-order", "", 42)
	c.SetParamNames("id")
	c.SetParamValues("5")

	require.NoError(t, h.Order(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, float64(15000), body["amount"])
	assert.True(t, strings.HasPrefix(body["order_id"].(string), "order_"))
}

func TestPaymentProcess_MockPrefix(t *testing.T) {
	h := NewPaymentHandler(&mockReservationService{}, service.NewMockPayments())

	c, rec := newContext(t, http.MethodPost, "/v1/payments/process", `{"payment_id":"MOCK_123","amount":100}`, 42)
	require.NoError(t, h.Process(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newContext(t, http.MethodPost, "/v1/payments/process", `{"payment_id":"visa_123","amount":100}`, 42)
	require.NoError(t, h.Process(c))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}
