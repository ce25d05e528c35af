package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
)

// ReservationService is the slice of the reservation manager the HTTP
// layer consumes.
type ReservationService interface {
	Book(ctx context.Context, userID, spotID uint64, vehicleNumber string) (*model.Reservation, error)
	BookInLot(ctx context.Context, userID, lotID uint64, vehicleNumber string) (*model.Reservation, error)
	MarkOccupied(ctx context.Context, userID, reservationID uint64) error
	Release(ctx context.Context, userID, reservationID uint64, paymentID string) (float64, error)
	Quote(ctx context.Context, userID, reservationID uint64) (float64, error)
	GetOwned(ctx context.Context, userID, reservationID uint64) (*model.Reservation, error)
	OpenBySpot(ctx context.Context, spotID uint64) (*model.Reservation, error)
	ByUser(ctx context.Context, userID uint64, activeOnly bool) ([]model.Reservation, error)
	History(ctx context.Context, userID uint64) ([]repository.HistoryEntry, error)
	All(ctx context.Context, paymentConfirmed *bool) ([]model.Reservation, error)
}

// ReservationHandler exposes the reservation lifecycle over HTTP. All
// business rules live in the ReservationManager; this layer binds
// requests and maps errors to status codes.
type ReservationHandler struct {
	Manager ReservationService
}

func NewReservationHandler(m ReservationService) *ReservationHandler {
	return &ReservationHandler{Manager: m}
}

type reservationResp struct {
	ID               uint64   `json:"id"`
	SpotID           uint64   `json:"spot_id"`
	VehicleNumber    string   `json:"vehicle_number"`
	ReservedAt       string   `json:"reserved_at"`
	ParkedAt         *string  `json:"parked_at,omitempty"`
	LeavingAt        *string  `json:"leaving_at,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
	PaymentConfirmed bool     `json:"payment_confirmed"`
	Status           string   `json:"status"`
}

func toReservationResp(r *model.Reservation) reservationResp {
	const layout = "2006-01-02 15:04:05"
	resp := reservationResp{
		ID:               r.ID,
		SpotID:           r.SpotID,
		VehicleNumber:    r.VehicleNumber,
		ReservedAt:       r.ReservedAt.Format(layout),
		Cost:             r.Cost,
		PaymentConfirmed: r.PaymentConfirmed,
		Status:           "OPEN",
	}
	if r.ParkedAt != nil {
		s := r.ParkedAt.Format(layout)
		resp.ParkedAt = &s
	}
	if r.LeavingAt != nil {
		s := r.LeavingAt.Format(layout)
		resp.LeavingAt = &s
		resp.Status = "COMPLETED"
	}
	return resp
}

// BookSpot handles POST /v1/spots/:id/reservations.
func (h *ReservationHandler) BookSpot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	spotID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid spot id"})
	}
	var body struct {
		VehicleNumber string `json:"vehicle_number"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Manager.Book(ctx, uid, spotID, body.VehicleNumber)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

// BookInLot handles POST /v1/reservations: auto-allocate any free spot
// in the requested lot.
func (h *ReservationHandler) BookInLot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		LotID         uint64 `json:"lot_id"`
		VehicleNumber string `json:"vehicle_number"`
	}
	if err := c.Bind(&body); err != nil || body.LotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lot_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Manager.BookInLot(ctx, uid, body.LotID, body.VehicleNumber)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

// Occupy handles POST /v1/reservations/:id/occupy: the vehicle has
// arrived at the spot.
func (h *ReservationHandler) Occupy(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Manager.MarkOccupied(ctx, uid, id); err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "vehicle parked"})
}

// Release handles POST /v1/reservations/:id/release. The optional
// payment_id is confirmed before anything is committed; a rejected
// payment returns 402 and leaves the reservation open.
func (h *ReservationHandler) Release(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		PaymentID string `json:"payment_id"`
	}
	_ = c.Bind(&body) // body is optional

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	amount, err := h.Manager.Release(ctx, uid, id, body.PaymentID)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":           "reservation completed",
		"amount":            amount,
		"payment_confirmed": body.PaymentID != "",
		"receipt_id":        newReceiptID(),
	})
}

// Get handles GET /v1/reservations/:id. Users can only read their own
// reservations.
func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Manager.GetOwned(ctx, uid, id)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// List handles GET /v1/reservations for the current user. With
// ?active=true only open reservations are returned.
func (h *ReservationHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.Manager.ByUser(ctx, uid, c.QueryParam("active") == "true")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]reservationResp, 0, len(list))
	for i := range list {
		out = append(out, toReservationResp(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// History handles GET /v1/reservations/history: completed stays with
// their lot and spot details, newest first.
func (h *ReservationHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entries, err := h.Manager.History(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	type historyResp struct {
		reservationResp
		PrimeLocation string  `json:"prime_location"`
		Address       string  `json:"address"`
		PricePerHour  float64 `json:"price_per_hour"`
	}
	out := make([]historyResp, 0, len(entries))
	for i := range entries {
		out = append(out, historyResp{
			reservationResp: toReservationResp(&entries[i].Reservation),
			PrimeLocation:   entries[i].PrimeLocation,
			Address:         entries[i].Address,
			PricePerHour:    entries[i].PricePerHour,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"history": out})
}

// SpotReservation handles GET /v1/spots/:id/reservation (ADMIN): the
// open reservation currently holding the spot, 404 when it is free.
func (h *ReservationHandler) SpotReservation(c echo.Context) error {
	spotID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid spot id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Manager.OpenBySpot(ctx, spotID)
	if err != nil {
		return reservationError(c, err)
	}
	type adminResp struct {
		reservationResp
		UserID uint64 `json:"user_id"`
	}
	return c.JSON(http.StatusOK, adminResp{reservationResp: toReservationResp(res), UserID: res.UserID})
}

// ListAll handles GET /v1/reservations/all (ADMIN). The optional
// ?payment_confirmed=true|false filter narrows on the payment flag.
func (h *ReservationHandler) ListAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	var paid *bool
	switch c.QueryParam("payment_confirmed") {
	case "true":
		v := true
		paid = &v
	case "false":
		v := false
		paid = &v
	}

	list, err := h.Manager.All(ctx, paid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	type adminResp struct {
		reservationResp
		UserID uint64 `json:"user_id"`
	}
	out := make([]adminResp, 0, len(list))
	for i := range list {
		out = append(out, adminResp{reservationResp: toReservationResp(&list[i]), UserID: list[i].UserID})
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}
