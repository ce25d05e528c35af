package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-lot-reservation/internal/config"
	"github.com/iliyamo/parking-lot-reservation/internal/database"
	"github.com/iliyamo/parking-lot-reservation/internal/handler"
	"github.com/iliyamo/parking-lot-reservation/internal/middleware"
	"github.com/iliyamo/parking-lot-reservation/internal/queue"
	"github.com/iliyamo/parking-lot-reservation/internal/repository"
	"github.com/iliyamo/parking-lot-reservation/internal/router"
	"github.com/iliyamo/parking-lot-reservation/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional; without it caching and rate limiting disable
	// themselves.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, cache and rate limit disabled")
	}
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	spots := repository.NewSpotRepo(db)
	lots := repository.NewLotRepo(db, spots)
	reservations := repository.NewReservationRepo(db)
	notifications := repository.NewNotificationRepo(db)

	payments := service.NewMockPayments()
	notifier := service.NewDBNotifier(notifications)
	manager := service.NewReservationManager(spots, lots, reservations, payments, notifier, cache)

	go func() {
		if err := queue.StartReservationConsumer(); err != nil {
			log.Printf("reservation consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	router.Register(e, router.Deps{
		DB:            db,
		JWTSecret:     cfg.JWTSecret,
		Auth:          handler.NewAuthHandler(cfg, users, tokens),
		Lots:          handler.NewLotHandler(lots, spots, cache),
		Reservations:  handler.NewReservationHandler(manager),
		Payments:      handler.NewPaymentHandler(manager, payments),
		Notifications: handler.NewNotificationHandler(notifications),
		Cache:         cache,
		RateLimit:     rateLimit,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
