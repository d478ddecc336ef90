package booking

import (
    "context"
    "errors"
    "log"
    "math"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// SeatReleaser clears advisory locks for seats that just became
// permanently booked.  Implemented by the lock coordinator; a nil
// releaser is tolerated so the commit path never depends on the
// advisory layer being up.
type SeatReleaser interface {
    ForceRelease(departureID uint64, seats []string)
}

// CommitRequest carries everything a client submits to buy seats.
type CommitRequest struct {
    DepartureID   uint64                `json:"departure_id"`
    Passengers    []model.Passenger     `json:"passengers"`
    Seats         []model.SeatSelection `json:"seats"`
    Contact       model.Contact         `json:"contact"`
    PaymentMethod string                `json:"payment_method"`
}

// Engine is the authoritative booking path.  It validates a request,
// prices it, and drives the store's atomic decrement-and-insert,
// retrying a bounded number of times from fresh state when the write
// loses to a concurrent conflicting writer.  Soft locks are never
// consulted: the ledger re-check inside the store is the decisive
// double-booking guard.
type Engine struct {
    store    Store
    releaser SeatReleaser
    retries  int
    now      func() time.Time
}

// NewEngine builds an Engine.  retries bounds re-runs of the atomic
// step on transactional conflict; values below 1 are raised to 1.
func NewEngine(store Store, releaser SeatReleaser, retries int) *Engine {
    if retries < 1 {
        retries = 1
    }
    return &Engine{store: store, releaser: releaser, retries: retries, now: time.Now}
}

// maxRefCodeRetries bounds regeneration on reference-code collisions.
const maxRefCodeRetries = 5

// Commit converts a seat selection into a permanent sale.  See the
// Store contract for the atomicity guarantees; validation failures are
// reported immediately and never retried.
func (e *Engine) Commit(ctx context.Context, req *CommitRequest) (*model.Booking, error) {
    if err := validateCommit(req); err != nil {
        return nil, err
    }

    var lastErr error
    for attempt := 0; attempt < e.retries; attempt++ {
        dep, err := e.store.Departure(ctx, req.DepartureID)
        if err != nil {
            return nil, err
        }

        b := &model.Booking{
            DepartureID:   dep.ID,
            Seats:         buildSeats(req),
            Contact:       req.Contact,
            PaymentMethod: req.PaymentMethod,
            TotalCents:    TotalCents(dep, req.Seats),
            Status:        model.BookingConfirmed,
            Trip: model.TripSnapshot{
                OriginCity:          dep.OriginCity,
                OriginTerminal:      dep.OriginTerminal,
                DestinationCity:     dep.DestinationCity,
                DestinationTerminal: dep.DestinationTerminal,
                Operator:            dep.Operator,
                DepartsAt:           dep.DepartsAt,
                ArrivesAt:           dep.ArrivesAt,
            },
            Policy:    dep.Policy,
            CreatedAt: e.now().UTC(),
        }

        err = e.insertWithFreshRef(ctx, b)
        if errors.Is(err, ErrTxConflict) {
            lastErr = err
            continue
        }
        if err != nil {
            return nil, err
        }

        // The seats are now permanently booked; clear any advisory lock
        // anyone still holds on them.
        if e.releaser != nil {
            e.releaser.ForceRelease(b.DepartureID, b.SeatNumbers())
        }
        return b, nil
    }
    log.Printf("booking: commit for departure %d gave up after %d attempts: %v", req.DepartureID, e.retries, lastErr)
    return nil, ErrCommitFailed
}

// insertWithFreshRef runs the store's atomic insert, regenerating the
// reference code when it collides with an existing booking.  A
// collision is never resolved by overwriting.
func (e *Engine) insertWithFreshRef(ctx context.Context, b *model.Booking) error {
    for i := 0; i < maxRefCodeRetries; i++ {
        code, err := NewRefCode()
        if err != nil {
            return err
        }
        b.RefCode = code
        err = e.store.CreateBooking(ctx, b)
        if errors.Is(err, ErrRefCodeTaken) {
            continue
        }
        return err
    }
    return ErrCommitFailed
}

func validateCommit(req *CommitRequest) error {
    if req == nil || req.DepartureID == 0 {
        return ErrInvalidRequest
    }
    if len(req.Passengers) == 0 || len(req.Passengers) != len(req.Seats) {
        return ErrInvalidRequest
    }
    if req.Contact.Name == "" || (req.Contact.Phone == "" && req.Contact.Email == "") {
        return ErrInvalidRequest
    }
    seen := make(map[string]struct{}, len(req.Seats))
    for _, s := range req.Seats {
        if s.SeatNo == "" || s.Multiplier <= 0 {
            return ErrInvalidRequest
        }
        if _, dup := seen[s.SeatNo]; dup {
            return ErrInvalidRequest
        }
        seen[s.SeatNo] = struct{}{}
    }
    for _, p := range req.Passengers {
        if p.Name == "" {
            return ErrInvalidRequest
        }
    }
    return nil
}

func buildSeats(req *CommitRequest) []model.BookedSeat {
    seats := make([]model.BookedSeat, len(req.Seats))
    for i, s := range req.Seats {
        seats[i] = model.BookedSeat{
            SeatNo:     s.SeatNo,
            Multiplier: s.Multiplier,
            Passenger:  req.Passengers[i],
        }
    }
    return seats
}

// TotalCents prices a seat selection against a departure: the sum of
// base price times each seat's multiplier, scaled by the discount ratio
// when the departure carries a discounted price lower than its base
// price, rounded to the nearest cent.
func TotalCents(dep *model.Departure, seats []model.SeatSelection) uint32 {
    total := 0.0
    for _, s := range seats {
        total += float64(dep.PriceCents) * s.Multiplier
    }
    if dep.DiscountPriceCents != nil && *dep.DiscountPriceCents < dep.PriceCents && dep.PriceCents > 0 {
        total *= float64(*dep.DiscountPriceCents) / float64(dep.PriceCents)
    }
    return uint32(math.Round(total))
}
