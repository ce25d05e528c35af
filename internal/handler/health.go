package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health reports liveness and database reachability.
func Health(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		dbState := "up"
		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			dbState = "down"
		}
		return c.JSON(status, echo.Map{"status": "ok", "database": dbState})
	}
}
