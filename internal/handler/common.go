// Package handler implements the HTTP endpoints. Handlers stay thin:
// they bind and validate input, call a repository or the reservation
// service, and translate sentinel errors into status codes.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// getUserID extracts the authenticated user's id stored in context by
// the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	uid, ok := c.Get("user_id").(uint64)
	if !ok || uid == 0 {
		return 0, errors.New("no user in context")
	}
	return uid, nil
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// reservationError maps service and repository sentinels onto HTTP
// responses. Anything unrecognized becomes a 500.
func reservationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrLotNotFound),
		errors.Is(err, repository.ErrSpotNotFound),
		errors.Is(err, repository.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrSpotUnavailable),
		errors.Is(err, service.ErrNoSpotAvailable),
		errors.Is(err, repository.ErrAlreadyCompleted),
		errors.Is(err, repository.ErrAlreadyParked),
		errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPaymentRejected):
		return c.JSON(http.StatusPaymentRequired, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidVehicleNumber):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
