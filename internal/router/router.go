package router // package router defines how HTTP routes are registered for the API

import (
    "github.com/labstack/echo/v4"  // import the Echo web framework to handle routing
    "github.com/redis/go-redis/v9" // redis backs the rate-limit and cache middleware

    "github.com/iliyamo/bus-seat-reservation/internal/config"     // middleware configuration
    "github.com/iliyamo/bus-seat-reservation/internal/handler"    // import the handlers that implement business logic
    "github.com/iliyamo/bus-seat-reservation/internal/middleware" // import middleware for JWT authentication and rate limiting
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
    Auth       *handler.AuthHandler
    Departures *handler.DepartureHandler
    Seatmap    *handler.SeatmapHandler
    Bookings   *handler.BookingHandler
}

// RegisterRoutes registers the whole HTTP surface on the provided Echo
// instance.  Browse endpoints sit behind the response cache; the chatty
// seat-map intents sit behind the Redis token bucket.  A nil redis
// client disables both middlewares gracefully.
func RegisterRoutes(e *echo.Echo, cfg config.Config, rdb *redis.Client, h Handlers) {
    // Health check for load balancers and monitoring.
    e.GET("/healthz", handler.Health)

    // Admin authentication with the single shared credential.
    e.POST("/v1/auth/login", h.Auth.Login)

    rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
    cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

    // Public browse surface.
    e.GET("/v1/departures", h.Departures.List, cache)
    e.GET("/v1/departures/:id", h.Departures.Get, cache)

    // Collaborative seat map: join snapshot, live stream, and the
    // select/deselect/disconnect intents.
    e.GET("/v1/departures/:id/seatmap", h.Seatmap.Join, rateLimit)
    e.GET("/v1/departures/:id/seatmap/stream", h.Seatmap.Stream)
    e.POST("/v1/departures/:id/seats/select", h.Seatmap.Select, rateLimit)
    e.DELETE("/v1/departures/:id/seats/select", h.Seatmap.Deselect, rateLimit)
    e.POST("/v1/seatmap/disconnect", h.Seatmap.Disconnect)

    // Booking commit, lookup and cancellation.
    e.POST("/v1/bookings", h.Bookings.Create)
    e.GET("/v1/bookings/:ref", h.Bookings.Get)
    e.POST("/v1/bookings/:ref/cancel", h.Bookings.Cancel)

    // Admin-only inventory insertion: a new departure with a fixed seat
    // count.  Nothing on this surface adjusts an existing counter.
    admin := e.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), middleware.RequireRole("ADMIN"))
    admin.POST("/departures", h.Departures.Create)
}
