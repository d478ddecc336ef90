package handler

import (
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/hub"
    "github.com/iliyamo/bus-seat-reservation/internal/lock"
)

// SeatmapHandler exposes the collaborative seat-map surface: join
// snapshots, select/deselect intents, disconnect, and the SSE stream a
// client keeps open while looking at a departure.  Everything here is
// advisory; the booking endpoints never trust it.
type SeatmapHandler struct {
    Coordinator *lock.Coordinator
    Hub         *hub.Hub
}

func NewSeatmapHandler(coordinator *lock.Coordinator, h *hub.Hub) *SeatmapHandler {
    if coordinator == nil || h == nil {
        panic("nil dependency passed to NewSeatmapHandler")
    }
    return &SeatmapHandler{Coordinator: coordinator, Hub: h}
}

// Join handles GET /v1/departures/:id/seatmap.  When the client does
// not present a holder identity yet, one is minted and returned with
// the snapshot; the client keeps using it for the whole session.
func (h *SeatmapHandler) Join(c echo.Context) error {
    departureID, err := departureParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
    }
    holder := c.QueryParam("holder")
    if holder == "" {
        holder = uuid.NewString()
    }
    snap, err := h.Coordinator.Join(c.Request().Context(), departureID, holder)
    if err != nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "seat map unavailable"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "holder":       holder,
        "booked_seats": snap.BookedSeats,
        "held_seats":   snap.HeldSeats,
    })
}

type seatIntentReq struct {
    Seat   string `json:"seat"`
    Holder string `json:"holder"`
}

func (r *seatIntentReq) valid() bool { return r.Seat != "" && r.Holder != "" }

// Select handles POST /v1/departures/:id/seats/select.  The three
// outcomes map to distinct payloads so clients must handle each.
func (h *SeatmapHandler) Select(c echo.Context) error {
    departureID, err := departureParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
    }
    var req seatIntentReq
    if err := c.Bind(&req); err != nil || !req.valid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat and holder are required"})
    }
    res := h.Coordinator.Select(c.Request().Context(), departureID, req.Seat, req.Holder)
    switch res.Outcome {
    case lock.SelectGranted:
        return c.JSON(http.StatusOK, echo.Map{
            "status":             "granted",
            "seat":               req.Seat,
            "expires_in_seconds": res.ExpiresInSeconds,
        })
    case lock.SelectLockedByOther:
        return c.JSON(http.StatusConflict, echo.Map{
            "status":            "locked",
            "seat":              req.Seat,
            "time_left_seconds": res.TimeLeftSeconds,
        })
    default:
        return c.JSON(http.StatusGone, echo.Map{
            "status": "unavailable",
            "seat":   req.Seat,
        })
    }
}

// Deselect handles DELETE /v1/departures/:id/seats/select.
func (h *SeatmapHandler) Deselect(c echo.Context) error {
    departureID, err := departureParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
    }
    var req seatIntentReq
    if err := c.Bind(&req); err != nil || !req.valid() {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat and holder are required"})
    }
    h.Coordinator.Deselect(departureID, req.Seat, req.Holder)
    return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Disconnect handles POST /v1/seatmap/disconnect, the explicit
// counterpart of a dropped stream: every lock the holder owns, on any
// departure, is released.
func (h *SeatmapHandler) Disconnect(c echo.Context) error {
    var req struct {
        Holder string `json:"holder"`
    }
    if err := c.Bind(&req); err != nil || req.Holder == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder is required"})
    }
    h.Coordinator.Disconnect(req.Holder)
    return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Stream handles GET /v1/departures/:id/seatmap/stream: a server-sent
// event subscription to the departure's room.  When the connection
// drops, the holder's locks are released as a disconnect — this is the
// liveness hook that frees seats of clients who simply went away.
func (h *SeatmapHandler) Stream(c echo.Context) error {
    departureID, err := departureParam(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
    }
    holder := c.QueryParam("holder")
    if holder == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "holder is required"})
    }

    resp := c.Response()
    resp.Header().Set(echo.HeaderContentType, "text/event-stream")
    resp.Header().Set("Cache-Control", "no-cache")
    resp.Header().Set("Connection", "keep-alive")
    resp.WriteHeader(http.StatusOK)
    resp.Flush()

    sub := h.Hub.Subscribe(departureID, holder)
    defer func() {
        h.Hub.Unsubscribe(departureID, sub)
        h.Coordinator.Disconnect(holder)
    }()

    heartbeat := time.NewTicker(15 * time.Second)
    defer heartbeat.Stop()
    ctx := c.Request().Context()
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-heartbeat.C:
            if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
                return nil
            }
            resp.Flush()
        case msg, ok := <-sub.C():
            if !ok {
                return nil
            }
            body, err := json.Marshal(msg)
            if err != nil {
                continue
            }
            if _, err := fmt.Fprintf(resp, "data: %s\n\n", body); err != nil {
                return nil
            }
            resp.Flush()
        }
    }
}

func departureParam(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, fmt.Errorf("invalid departure id %q", c.Param("id"))
    }
    return id, nil
}
