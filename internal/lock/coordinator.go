package lock

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "log"
    "sync"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/hub"
)

// SelectOutcome tags the result of a Select call so every caller
// handles every variant.
type SelectOutcome int

const (
    SelectGranted SelectOutcome = iota
    SelectLockedByOther
    SelectUnavailable
)

// SelectResult is what a seat-selection intent resolves to.
type SelectResult struct {
    Outcome          SelectOutcome `json:"-"`
    ExpiresInSeconds int           `json:"expires_in_seconds,omitempty"` // Granted
    TimeLeftSeconds  int           `json:"time_left_seconds,omitempty"`  // LockedByOther
}

// HeldSeat is a live lock as disclosed to watchers: the holder appears
// only as an opaque short token.
type HeldSeat struct {
    SeatNo          string `json:"seat_no"`
    Holder          string `json:"holder"`
    TimeLeftSeconds int    `json:"time_left_seconds"`
}

// Snapshot is the current seat-map state returned on join: the
// authoritative booked set plus every other holder's live locks.
type Snapshot struct {
    BookedSeats []string   `json:"booked_seats"`
    HeldSeats   []HeldSeat `json:"held_seats"`
}

// Coordinator translates client intents into registry operations and
// fans resulting state changes out to every other watcher of the same
// departure.  All side effects are advisory broadcasts; no durable
// write ever originates here.
type Coordinator struct {
    reg        *Registry
    booked     BookedSource
    pub        hub.Publisher
    sweepEvery time.Duration

    stopOnce sync.Once
    done     chan struct{}
    wg       sync.WaitGroup
}

// NewCoordinator wires a coordinator over the registry.  booked should
// be the same ledger-backed source the registry consults.
func NewCoordinator(reg *Registry, booked BookedSource, pub hub.Publisher, sweepEvery time.Duration) *Coordinator {
    return &Coordinator{
        reg:        reg,
        booked:     booked,
        pub:        pub,
        sweepEvery: sweepEvery,
        done:       make(chan struct{}),
    }
}

// Start launches the recurring expiry sweep.  Stop cancels it; both are
// owned by the process lifecycle, not by any request.
func (c *Coordinator) Start() {
    c.wg.Add(1)
    go func() {
        defer c.wg.Done()
        t := time.NewTicker(c.sweepEvery)
        defer t.Stop()
        for {
            select {
            case <-t.C:
                c.sweep()
            case <-c.done:
                return
            }
        }
    }()
}

func (c *Coordinator) Stop() {
    c.stopOnce.Do(func() { close(c.done) })
    c.wg.Wait()
}

// Join returns the departure's current seat-map snapshot for a new
// watcher: booked seats plus the live locks of everyone else.
func (c *Coordinator) Join(ctx context.Context, departureID uint64, holder string) (*Snapshot, error) {
    booked, err := c.booked.BookedSeats(ctx, departureID)
    if err != nil {
        return nil, err
    }
    snap := &Snapshot{BookedSeats: make([]string, 0, len(booked))}
    for seatNo := range booked {
        snap.BookedSeats = append(snap.BookedSeats, seatNo)
    }
    now := time.Now()
    for _, h := range c.reg.Live(departureID, holder) {
        snap.HeldSeats = append(snap.HeldSeats, HeldSeat{
            SeatNo:          h.SeatNo,
            Holder:          ShortToken(h.Holder),
            TimeLeftSeconds: secondsUntil(h.ExpiresAt, now),
        })
    }
    return snap, nil
}

// Select attempts to soft-lock a seat for the holder.  On a grant the
// other watchers of the departure are told the seat is taken; the loser
// of a race gets a definitive rejection with the remaining TTL, never a
// queued wait.
func (c *Coordinator) Select(ctx context.Context, departureID uint64, seatNo, holder string) SelectResult {
    res, err := c.reg.Acquire(ctx, departureID, seatNo, holder)
    if err != nil {
        // Fail closed: without a ledger answer the seat must be treated
        // as unavailable rather than optimistically granted.
        log.Printf("seatlock: booked-set lookup for departure %d failed, failing closed: %v", departureID, err)
        return SelectResult{Outcome: SelectUnavailable}
    }
    now := time.Now()
    switch res.Status {
    case StatusGranted:
        expires := secondsUntil(res.ExpiresAt, now)
        c.pub.Publish(departureID, holder, hub.Message{
            Type:             hub.SeatSelected,
            Seat:             seatNo,
            Holder:           ShortToken(holder),
            ExpiresInSeconds: expires,
        })
        return SelectResult{Outcome: SelectGranted, ExpiresInSeconds: expires}
    case StatusHeldByOther:
        return SelectResult{Outcome: SelectLockedByOther, TimeLeftSeconds: int(res.TimeLeft / time.Second)}
    default:
        return SelectResult{Outcome: SelectUnavailable}
    }
}

// Deselect releases the holder's own lock and tells the other watchers
// the seat is free again.  Releasing a seat one does not hold is a
// no-op.
func (c *Coordinator) Deselect(departureID uint64, seatNo, holder string) {
    if c.reg.Release(departureID, seatNo, holder) {
        c.pub.Publish(departureID, holder, hub.Message{Type: hub.SeatDeselected, Seat: seatNo})
    }
}

// Disconnect releases every lock the holder owns across all departures
// and broadcasts the freed seats per departure.
func (c *Coordinator) Disconnect(holder string) {
    c.broadcastReleased(c.reg.ReleaseAll(holder))
}

// ForceRelease is invoked by the booking commit engine right after a
// successful commit: the seats are booked now, so any advisory lock on
// them (the committer's or a racer's) is cleared and watchers are told
// the seats are permanently gone.
func (c *Coordinator) ForceRelease(departureID uint64, seats []string) {
    c.reg.ForceRelease(departureID, seats)
    c.pub.Publish(departureID, "", hub.Message{Type: hub.SeatsBooked, Seats: seats})
}

func (c *Coordinator) sweep() {
    c.broadcastReleased(c.reg.SweepExpired())
}

func (c *Coordinator) broadcastReleased(freed []SeatRef) {
    if len(freed) == 0 {
        return
    }
    byDeparture := make(map[uint64][]string)
    for _, ref := range freed {
        byDeparture[ref.DepartureID] = append(byDeparture[ref.DepartureID], ref.SeatNo)
    }
    for departureID, seats := range byDeparture {
        c.pub.Publish(departureID, "", hub.Message{Type: hub.SeatsReleased, Seats: seats})
    }
}

// ShortToken derives the opaque token under which a holder is disclosed
// to other watchers.  It is stable for a holder but not reversible.
func ShortToken(holder string) string {
    sum := sha256.Sum256([]byte(holder))
    return hex.EncodeToString(sum[:4])
}

func secondsUntil(t, now time.Time) int {
    s := int(t.Sub(now) / time.Second)
    if s < 0 {
        return 0
    }
    return s
}
