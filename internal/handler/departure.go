package handler

import (
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-seat-reservation/internal/booking"
    "github.com/iliyamo/bus-seat-reservation/internal/config"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
    "github.com/iliyamo/bus-seat-reservation/internal/repository"
)

// DepartureHandler exposes the departure browse surface and the
// admin-only insert.  Inserts always create a departure with a fixed
// seat count (available = total); there is no endpoint that adjusts an
// existing counter — only the commit and cancellation engines may touch
// it.
type DepartureHandler struct {
    Cfg        config.Config
    Departures *repository.DepartureRepo
}

func NewDepartureHandler(cfg config.Config, departures *repository.DepartureRepo) *DepartureHandler {
    if departures == nil {
        panic("nil repository passed to NewDepartureHandler")
    }
    return &DepartureHandler{Cfg: cfg, Departures: departures}
}

type createDepartureReq struct {
    OriginCity          string   `json:"origin_city"`
    OriginTerminal      string   `json:"origin_terminal"`
    DestinationCity     string   `json:"destination_city"`
    DestinationTerminal string   `json:"destination_terminal"`
    Operator            string   `json:"operator"`
    DepartsAt           string   `json:"departs_at"` // RFC 3339
    ArrivesAt           string   `json:"arrives_at"` // RFC 3339
    TotalSeats          int      `json:"total_seats"`
    PriceCents          uint32   `json:"price_cents"`
    DiscountPriceCents  *uint32  `json:"discount_price_cents"`
    Amenities           []string `json:"amenities"`
}

// Create handles POST /v1/departures (admin).  The cancellation policy
// recorded on the new departure comes from the configured defaults.
func (h *DepartureHandler) Create(c echo.Context) error {
    var req createDepartureReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.OriginCity == "" || req.DestinationCity == "" || req.Operator == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "origin_city, destination_city and operator are required"})
    }
    if req.TotalSeats <= 0 || req.PriceCents == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "total_seats and price_cents must be positive"})
    }
    departsAt, err := time.Parse(time.RFC3339, req.DepartsAt)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "departs_at must be RFC 3339"})
    }
    arrivesAt, err := time.Parse(time.RFC3339, req.ArrivesAt)
    if err != nil || !arrivesAt.After(departsAt) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "arrives_at must be RFC 3339 and after departs_at"})
    }

    d := &model.Departure{
        OriginCity:          req.OriginCity,
        OriginTerminal:      req.OriginTerminal,
        DestinationCity:     req.DestinationCity,
        DestinationTerminal: req.DestinationTerminal,
        Operator:            req.Operator,
        DepartsAt:           departsAt.UTC(),
        ArrivesAt:           arrivesAt.UTC(),
        TotalSeats:          req.TotalSeats,
        PriceCents:          req.PriceCents,
        DiscountPriceCents:  req.DiscountPriceCents,
        Amenities:           req.Amenities,
        Policy: model.CancellationPolicy{
            Allowed:       true,
            DeadlineHours: h.Cfg.CancelDeadlineHours,
            RefundPercent: h.Cfg.RefundPercent,
        },
    }
    if err := h.Departures.Create(c.Request().Context(), d); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create departure"})
    }
    return c.JSON(http.StatusCreated, departureResponse(d))
}

// List handles GET /v1/departures with optional ?origin= and
// ?destination= city filters.
func (h *DepartureHandler) List(c echo.Context) error {
    departures, err := h.Departures.List(c.Request().Context(), c.QueryParam("origin"), c.QueryParam("destination"))
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    out := make([]echo.Map, 0, len(departures))
    for i := range departures {
        out = append(out, departureResponse(&departures[i]))
    }
    return c.JSON(http.StatusOK, echo.Map{"departures": out})
}

// Get handles GET /v1/departures/:id.
func (h *DepartureHandler) Get(c echo.Context) error {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
    }
    d, err := h.Departures.GetByID(c.Request().Context(), id)
    if err != nil {
        if errors.Is(err, booking.ErrDepartureNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "departure not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, departureResponse(d))
}

func departureResponse(d *model.Departure) echo.Map {
    resp := echo.Map{
        "id":                   d.ID,
        "origin_city":          d.OriginCity,
        "origin_terminal":      d.OriginTerminal,
        "destination_city":     d.DestinationCity,
        "destination_terminal": d.DestinationTerminal,
        "operator":             d.Operator,
        "departs_at":           d.DepartsAt.Format(time.RFC3339),
        "arrives_at":           d.ArrivesAt.Format(time.RFC3339),
        "total_seats":          d.TotalSeats,
        "available_seats":      d.AvailableSeats,
        "price_cents":          d.PriceCents,
        "amenities":            d.Amenities,
        "cancellation_policy": echo.Map{
            "allowed":        d.Policy.Allowed,
            "deadline_hours": d.Policy.DeadlineHours,
            "refund_percent": d.Policy.RefundPercent,
        },
    }
    if d.DiscountPriceCents != nil {
        resp["discount_price_cents"] = *d.DiscountPriceCents
    }
    return resp
}
