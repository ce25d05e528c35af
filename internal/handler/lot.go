package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

// LotStore is the slice of the lot repository the HTTP layer consumes.
type LotStore interface {
	Create(ctx context.Context, lot *model.Lot) error
	GetByID(ctx context.Context, id uint64) (*model.Lot, error)
	Search(ctx context.Context, name, pincode, address string) ([]model.Lot, error)
	Update(ctx context.Context, lot *model.Lot) error
	Delete(ctx context.Context, id uint64) error
}

// SpotBrowser is the read-only spot surface the browse endpoints use.
type SpotBrowser interface {
	ListByLot(ctx context.Context, lotID uint64, availableOnly bool) ([]model.Spot, error)
	CountOccupiedByLot(ctx context.Context, lotID uint64) (int, error)
}

// LotHandler serves both the public browse endpoints and the admin
// lot management endpoints. The router decides which methods sit
// behind RequireRole("ADMIN").
type LotHandler struct {
	Lots  LotStore
	Spots SpotBrowser
	Cache service.CacheInvalidator
}

func NewLotHandler(lots LotStore, spots SpotBrowser, cache service.CacheInvalidator) *LotHandler {
	return &LotHandler{Lots: lots, Spots: spots, Cache: cache}
}

type lotReq struct {
	PrimeLocation string  `json:"prime_location"`
	Address       string  `json:"address"`
	Pincode       string  `json:"pincode"`
	PricePerHour  float64 `json:"price_per_hour"`
	NumberOfSpots uint32  `json:"number_of_spots"`
}

type lotResp struct {
	ID            uint64  `json:"id"`
	PrimeLocation string  `json:"prime_location"`
	Address       string  `json:"address"`
	Pincode       string  `json:"pincode"`
	PricePerHour  float64 `json:"price_per_hour"`
	NumberOfSpots uint32  `json:"number_of_spots"`
	Available     int     `json:"available_spots"`
	Occupied      int     `json:"occupied_spots"`
}

func (h *LotHandler) lotView(ctx context.Context, lot *model.Lot) lotResp {
	occupied, err := h.Spots.CountOccupiedByLot(ctx, lot.ID)
	if err != nil {
		occupied = 0
	}
	return lotResp{
		ID:            lot.ID,
		PrimeLocation: lot.PrimeLocation,
		Address:       lot.Address,
		Pincode:       lot.Pincode,
		PricePerHour:  lot.PricePerHour,
		NumberOfSpots: lot.NoOfSpots,
		Available:     int(lot.NoOfSpots) - occupied,
		Occupied:      occupied,
	}
}

func validateLotReq(req *lotReq) string {
	req.PrimeLocation = strings.TrimSpace(req.PrimeLocation)
	req.Address = strings.TrimSpace(req.Address)
	req.Pincode = strings.TrimSpace(req.Pincode)
	switch {
	case req.PrimeLocation == "":
		return "prime_location is required"
	case req.Address == "":
		return "address is required"
	case req.Pincode == "":
		return "pincode is required"
	case req.PricePerHour <= 0:
		return "price_per_hour must be positive"
	}
	return ""
}

// Create handles POST /v1/lots (ADMIN). The lot row and its spot rows
// are created together; a failure inserts nothing.
func (h *LotHandler) Create(c echo.Context) error {
	var req lotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := validateLotReq(&req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if req.NumberOfSpots == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "number_of_spots must be positive"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	lot := &model.Lot{
		PrimeLocation: req.PrimeLocation,
		Address:       req.Address,
		Pincode:       req.Pincode,
		PricePerHour:  req.PricePerHour,
		NoOfSpots:     req.NumberOfSpots,
	}
	if err := h.Lots.Create(ctx, lot); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create lot failed"})
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, "lots", "spots")
	}
	return c.JSON(http.StatusCreated, h.lotView(ctx, lot))
}

// Search handles GET /v1/lots with optional name, pincode and address
// query filters.
func (h *LotHandler) Search(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lots, err := h.Lots.Search(ctx,
		c.QueryParam("name"),
		c.QueryParam("pincode"),
		c.QueryParam("address"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "search failed"})
	}

	out := make([]lotResp, 0, len(lots))
	for i := range lots {
		out = append(out, h.lotView(ctx, &lots[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"lots": out})
}

// Get handles GET /v1/lots/:id.
func (h *LotHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lot, err := h.Lots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lot not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, h.lotView(ctx, lot))
}

// Update handles PUT /v1/lots/:id (ADMIN). Location fields and the
// hourly rate can change; the spot count cannot, spots are fixed at
// creation.
func (h *LotHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	var req lotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := validateLotReq(&req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lot, err := h.Lots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lot not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	lot.PrimeLocation = req.PrimeLocation
	lot.Address = req.Address
	lot.Pincode = req.Pincode
	lot.PricePerHour = req.PricePerHour
	if err := h.Lots.Update(ctx, lot); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, "lots")
	}
	return c.JSON(http.StatusOK, h.lotView(ctx, lot))
}

// Delete handles DELETE /v1/lots/:id (ADMIN). Refused with 409 while
// any spot in the lot is occupied.
func (h *LotHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.Lots.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrLotNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lot not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "lot has occupied spots"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
		}
	}
	if h.Cache != nil {
		h.Cache.Invalidate(ctx, "lots", "spots")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "lot deleted"})
}

// ListSpots handles GET /v1/lots/:id/spots. With ?available=true only
// free spots are returned.
func (h *LotHandler) ListSpots(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lot id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Lots.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrLotNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "lot not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	availableOnly := c.QueryParam("available") == "true"
	spots, err := h.Spots.ListByLot(ctx, id, availableOnly)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	type spotResp struct {
		ID       uint64 `json:"id"`
		LotID    uint64 `json:"lot_id"`
		Occupied bool   `json:"occupied"`
	}
	out := make([]spotResp, 0, len(spots))
	for _, s := range spots {
		out = append(out, spotResp{ID: s.ID, LotID: s.LotID, Occupied: s.Occupied})
	}
	return c.JSON(http.StatusOK, echo.Map{"spots": out})
}
