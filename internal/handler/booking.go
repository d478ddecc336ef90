package handler

import (
    "context"
    "errors"
    "log"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/booking"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/queue"
    "github.com/iliyamo/bus-seat-reservation/internal/service"
)

// BookingHandler fronts the commit and cancellation engines.  Every
// rejected commit or cancellation carries a specific, actionable reason
// (which seats conflicted, how many hours the deadline is) rather than
// a generic failure.
type BookingHandler struct {
    Engine *booking.Engine
    Store  booking.Store
}

func NewBookingHandler(engine *booking.Engine, store booking.Store) *BookingHandler {
    if engine == nil || store == nil {
        panic("nil dependency passed to NewBookingHandler")
    }
    return &BookingHandler{Engine: engine, Store: store}
}

// Create handles POST /v1/bookings.  The engine re-validates seats
// against the ledger inside its atomic step; nothing here consults the
// soft-lock layer.
func (h *BookingHandler) Create(c echo.Context) error {
    var req booking.CommitRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    b, err := h.Engine.Commit(c.Request().Context(), &req)
    if err != nil {
        var conflict *booking.SeatConflictError
        switch {
        case errors.Is(err, booking.ErrInvalidRequest):
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking request"})
        case errors.Is(err, booking.ErrDepartureNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "departure not found"})
        case errors.As(err, &conflict):
            return c.JSON(http.StatusConflict, echo.Map{
                "error":            "some seats are already booked",
                "conflicting_seats": conflict.Seats,
            })
        case errors.Is(err, booking.ErrInsufficientSeats):
            return c.JSON(http.StatusConflict, echo.Map{"error": "not enough available seats"})
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "booking could not be completed, no seats were charged"})
        }
    }

    // Broker notification is fire-and-forget: a broker outage must not
    // fail a sale that is already durable.
    go func(b *model.Booking) {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        ev := queue.BookingConfirmedEvent{
            RefCode:         b.RefCode,
            DepartureID:     b.DepartureID,
            OriginCity:      b.Trip.OriginCity,
            DestinationCity: b.Trip.DestinationCity,
            Operator:        b.Trip.Operator,
            DepartsAt:       b.Trip.DepartsAt.Format(time.RFC3339),
            Seats:           b.SeatNumbers(),
            TotalCents:      b.TotalCents,
            ConfirmedAt:     b.CreatedAt.Format(time.RFC3339),
        }
        if err := queue_publisher.PublishBookingConfirmed(ctx, ev); err != nil {
            log.Printf("booking-handler: publish confirmed event for %s failed: %v", b.RefCode, err)
        }
    }(b)

    return c.JSON(http.StatusCreated, bookingResponse(b))
}

// Get handles GET /v1/bookings/:ref.
func (h *BookingHandler) Get(c echo.Context) error {
    b, err := h.Store.BookingByRef(c.Request().Context(), c.Param("ref"))
    if err != nil {
        if errors.Is(err, booking.ErrBookingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, bookingResponse(b))
}

// Cancel handles POST /v1/bookings/:ref/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
    var req struct {
        Reason string `json:"reason"`
    }
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res, err := h.Engine.Cancel(c.Request().Context(), c.Param("ref"), req.Reason)
    if err != nil {
        var window *booking.WindowClosedError
        switch {
        case errors.Is(err, booking.ErrBookingNotFound):
            return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
        case errors.Is(err, booking.ErrAlreadyCancelled):
            return c.JSON(http.StatusConflict, echo.Map{"error": "booking is already cancelled"})
        case errors.Is(err, booking.ErrJourneyCompleted):
            return c.JSON(http.StatusConflict, echo.Map{"error": "departure time has already passed"})
        case errors.As(err, &window):
            return c.JSON(http.StatusConflict, echo.Map{
                "error":          "cancellation window closed",
                "deadline_hours": window.DeadlineHours,
            })
        default:
            return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancellation failed"})
        }
    }

    go func(res *booking.CancelResult, reason string) {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        ev := queue.BookingCancelledEvent{
            RefCode:     res.RefCode,
            RefundCents: res.RefundCents,
            Reason:      reason,
            CancelledAt: time.Now().UTC().Format(time.RFC3339),
        }
        if err := queue_publisher.PublishBookingCancelled(ctx, ev); err != nil {
            log.Printf("booking-handler: publish cancelled event for %s failed: %v", res.RefCode, err)
        }
    }(res, req.Reason)

    return c.JSON(http.StatusOK, echo.Map{
        "ref_code":       res.RefCode,
        "refund_cents":   res.RefundCents,
        "refund_percent": res.RefundPercent,
        "seats_released": res.SeatsReleased,
        "instructions":   res.Instructions,
    })
}

func bookingResponse(b *model.Booking) echo.Map {
    resp := echo.Map{
        "ref_code":       b.RefCode,
        "departure_id":   b.DepartureID,
        "status":         b.Status,
        "seats":          b.Seats,
        "contact":        b.Contact,
        "payment_method": b.PaymentMethod,
        "total_cents":    b.TotalCents,
        "trip": echo.Map{
            "origin_city":          b.Trip.OriginCity,
            "origin_terminal":      b.Trip.OriginTerminal,
            "destination_city":     b.Trip.DestinationCity,
            "destination_terminal": b.Trip.DestinationTerminal,
            "operator":             b.Trip.Operator,
            "departs_at":           b.Trip.DepartsAt.Format(time.RFC3339),
            "arrives_at":           b.Trip.ArrivesAt.Format(time.RFC3339),
        },
        "cancellation_policy": echo.Map{
            "allowed":        b.Policy.Allowed,
            "deadline_hours": b.Policy.DeadlineHours,
            "refund_percent": b.Policy.RefundPercent,
        },
        "created_at": b.CreatedAt.Format(time.RFC3339),
    }
    if b.CancelledAt != nil {
        resp["cancelled_at"] = b.CancelledAt.Format(time.RFC3339)
    }
    if b.CancelReason != nil {
        resp["cancel_reason"] = *b.CancelReason
    }
    if b.RefundCents != nil {
        resp["refund_cents"] = *b.RefundCents
    }
    return resp
}
