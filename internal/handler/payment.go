package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// PaymentHandler serves the payment preview for an open reservation
// and the mock payment processor. The preview mirrors a gateway order:
// the amount is quoted in the smallest currency unit and rounded up to
// whole hours, which is what a prepaid order would charge. The
// authoritative fractional charge still happens at release.
type PaymentHandler struct {
	Manager  ReservationService
	Payments service.PaymentConfirmer
}

func NewPaymentHandler(m ReservationService, p service.PaymentConfirmer) *PaymentHandler {
	return &PaymentHandler{Manager: m, Payments: p}
}

// newOrderID returns a gateway-style order identifier.
func newOrderID() string {
	return "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

// newReceiptID returns a receipt identifier for a completed charge.
func newReceiptID() string {
	return "RCP_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Order handles POST /v1/reservations/:id/payment-order. It quotes
// the current charge and wraps it in an order the client can pay.
func (h *PaymentHandler) Order(c echo.Context) error {
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

	amount, err := h.Manager.Quote(ctx, uid, id)
	if err != nil {
		return reservationError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"order_id":       newOrderID(),
		"reservation_id": id,
		"amount":         int64(amount * 100), // smallest currency unit
		"currency":       "INR",
		"receipt":        newReceiptID(),
		"created_at":     time.Now().UTC().Format("2006-01-02 15:04:05"),
	})
}

// Process handles POST /v1/payments/process: the mock gateway
// callback. It validates the payment id shape the same way the release
// path does, so clients can verify an id before releasing with it.
func (h *PaymentHandler) Process(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		PaymentID     string  `json:"payment_id"`
		OrderID       string  `json:"order_id"`
		Amount        float64 `json:"amount"`
		ReservationID uint64  `json:"reservation_id"`
	}
	if err := c.Bind(&body); err != nil || body.PaymentID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ok, err := h.Payments.Confirm(ctx, body.PaymentID, body.Amount, body.ReservationID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment check failed"})
	}
	if !ok {
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": "payment was rejected"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":    "payment verified",
		"payment_id": body.PaymentID,
		"order_id":   body.OrderID,
	})
}
