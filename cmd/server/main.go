package main // Entry point package

import (
    "context"
    "log"
    "os"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/booking"
    "github.com/iliyamo/bus-seat-reservation/internal/config"
    "github.com/iliyamo/bus-seat-reservation/internal/database"
    "github.com/iliyamo/bus-seat-reservation/internal/handler"
    "github.com/iliyamo/bus-seat-reservation/internal/hub"
    "github.com/iliyamo/bus-seat-reservation/internal/lock"
    "github.com/iliyamo/bus-seat-reservation/internal/queue"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
    "github.com/iliyamo/bus-seat-reservation/internal/router"
    "github.com/iliyamo/bus-seat-reservation/internal/utils"
)

func main() {
    // Load a local .env when present; real deployments set the
    // environment directly.
    _ = godotenv.Load()
    cfg := config.Load()

    // The admin credential may arrive as a plain password in dev; hash
    // it once at boot so the rest of the process only ever sees a hash.
    if cfg.AdminPassHash == "" {
        plain := os.Getenv("ADMIN_PASSWORD")
        if plain == "" {
            log.Fatal("set ADMIN_PASSWORD_HASH or ADMIN_PASSWORD")
        }
        hash, err := utils.HashPassword(plain, cfg.BcryptCost)
        if err != nil {
            log.Fatalf("hash admin password: %v", err)
        }
        cfg.AdminPassHash = hash
    }

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("open database: %v", err)
    }
    defer db.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    if err := database.Migrate(ctx, db); err != nil {
        cancel()
        log.Fatalf("migrate database: %v", err)
    }
    cancel()

    // Redis backs the rate limiter, the response cache and the external
    // seat-event bridge.  A nil client disables all three gracefully.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Print("redis unavailable; rate limiting, caching and the seatmap bridge are disabled")
    }

    departures := repository.NewDepartureRepo(db)
    store := repository.NewReservationStore(db, departures)

    // The advisory layer: registry + coordinator publishing into the
    // in-process rooms, mirrored to Redis for external gateways.
    rooms := hub.New()
    var fan hub.Fanout
    fan = append(fan, rooms)
    if rdb != nil {
        fan = append(fan, hub.NewRedisBridge(rdb))
    }
    registry := lock.NewRegistry(store, cfg.LockTTL)
    coordinator := lock.NewCoordinator(registry, store, fan, cfg.SweepInterval)
    coordinator.Start()
    defer coordinator.Stop()

    engine := booking.NewEngine(store, coordinator, cfg.CommitRetries)

    // Background consumer that writes broker events to logs/booking.log.
    go func() {
        if err := queue.StartBookingConsumer(); err != nil {
            log.Printf("booking-consumer stopped: %v", err)
        }
    }()

    e := echo.New()
    router.RegisterRoutes(e, cfg, rdb, router.Handlers{
        Auth:       handler.NewAuthHandler(cfg),
        Departures: handler.NewDepartureHandler(cfg, departures),
        Seatmap:    handler.NewSeatmapHandler(coordinator, rooms),
        Bookings:   handler.NewBookingHandler(engine, store),
    })

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
