// Package router wires handlers, middleware and route groups onto the
// Echo instance. Routes are split by audience: public browse,
// authenticated users and admins.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
)

// Deps carries everything route registration needs.
type Deps struct {
	DB            *sql.DB
	JWTSecret     string
	Auth          *handler.AuthHandler
	Lots          *handler.LotHandler
	Reservations  *handler.ReservationHandler
	Payments      *handler.PaymentHandler
	Notifications *handler.NotificationHandler
	Cache         *middleware.RedisCache
	RateLimit     echo.MiddlewareFunc
}

// Register sets up every route on the Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.RateLimit != nil {
		e.Use(d.RateLimit)
	}

	e.GET("/healthz", handler.Health(d.DB))

	// Unauthenticated auth operations.
	auth := e.Group("/v1/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)

	// Public browse endpoints, cached.
	public := e.Group("/v1")
	if d.Cache != nil {
		public.Use(d.Cache.Middleware())
	}
	public.GET("/lots", d.Lots.Search)
	public.GET("/lots/:id", d.Lots.Get)
	public.GET("/lots/:id/spots", d.Lots.ListSpots)

	// Authenticated endpoints, any role.
	user := e.Group("/v1")
	user.Use(middleware.JWTAuth(d.JWTSecret))
	user.Use(middleware.RequireRole("ADMIN", "USER"))
	user.GET("/me", d.Auth.Me)
	user.POST("/auth/logout", d.Auth.Logout)

	user.POST("/spots/:id/reservations", d.Reservations.BookSpot)
	user.POST("/reservations", d.Reservations.BookInLot)
	user.GET("/reservations", d.Reservations.List)
	user.GET("/reservations/history", d.Reservations.History)
	user.GET("/reservations/:id", d.Reservations.Get)
	user.POST("/reservations/:id/occupy", d.Reservations.Occupy)
	user.POST("/reservations/:id/release", d.Reservations.Release)
	user.POST("/reservations/:id/payment-order", d.Payments.Order)
	user.POST("/payments/process", d.Payments.Process)

	user.GET("/notifications", d.Notifications.List)
	user.POST("/notifications/:id/read", d.Notifications.MarkRead)

	// Admin-only management endpoints.
	admin := e.Group("/v1")
	admin.Use(middleware.JWTAuth(d.JWTSecret))
	admin.Use(middleware.RequireRole("ADMIN"))
	admin.POST("/lots", d.Lots.Create)
	admin.PUT("/lots/:id", d.Lots.Update)
	admin.DELETE("/lots/:id", d.Lots.Delete)
	admin.GET("/reservations/all", d.Reservations.ListAll)
	admin.GET("/spots/:id/reservation", d.Reservations.SpotReservation)
}
