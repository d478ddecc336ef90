// Package lock implements the advisory seat-lock layer: a process-local
// registry of which seats are currently being considered by which
// connected client, and the coordinator that mediates client intents
// and fans out changes to watchers.  Nothing here is durable or
// authoritative; the registry may be dropped and rebuilt from nothing
// (e.g. on restart) without violating any booking invariant.
package lock

import (
    "context"
    "sync"
    "time"
)

// BookedSource answers "which seats of this departure are permanently
// booked" from the authoritative reservation ledger.  The registry
// queries it fresh on every acquire; the answer is never cached here.
type BookedSource interface {
    BookedSeats(ctx context.Context, departureID uint64) (map[string]struct{}, error)
}

// Status of a seat from the registry's point of view.  Booked is
// terminal and lives in the ledger, not here: no lock operation may
// transition a booked seat back.
type Status int

const (
    StatusGranted Status = iota
    StatusHeldByOther
    StatusBooked
)

// AcquireResult is the outcome of an Acquire call.  TimeLeft is set for
// StatusHeldByOther; ExpiresAt for StatusGranted.
type AcquireResult struct {
    Status    Status
    TimeLeft  time.Duration
    ExpiresAt time.Time
}

// SeatRef identifies one (departure, seat) pair, used when reporting
// which locks a sweep, disconnect or forced release removed.
type SeatRef struct {
    DepartureID uint64
    SeatNo      string
}

// Held describes a live lock as exposed in join snapshots.  Holder is
// the raw holder identity; callers must translate it to an opaque token
// before disclosing it.
type Held struct {
    SeatNo    string
    Holder    string
    ExpiresAt time.Time
}

type seatLock struct {
    holder     string
    acquiredAt time.Time
    expiresAt  time.Time
}

// departureLocks is the per-departure shard: its own mutex, its own
// seat map.  A sweep or disconnect storm on one departure never stalls
// selection traffic on another.
type departureLocks struct {
    mu    sync.Mutex
    seats map[string]seatLock
}

// Registry tracks soft locks per departure with automatic expiry.  The
// outer mutex guards only map membership; every per-departure shard
// synchronizes independently.
type Registry struct {
    booked BookedSource
    ttl    time.Duration
    now    func() time.Time

    mu   sync.RWMutex
    deps map[uint64]*departureLocks
}

// NewRegistry builds a Registry whose granted locks expire after ttl.
func NewRegistry(booked BookedSource, ttl time.Duration) *Registry {
    return &Registry{
        booked: booked,
        ttl:    ttl,
        now:    time.Now,
        deps:   make(map[uint64]*departureLocks),
    }
}

func (r *Registry) shard(departureID uint64, create bool) *departureLocks {
    r.mu.RLock()
    d := r.deps[departureID]
    r.mu.RUnlock()
    if d != nil || !create {
        return d
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    if d = r.deps[departureID]; d == nil {
        d = &departureLocks{seats: make(map[string]seatLock)}
        r.deps[departureID] = d
    }
    return d
}

// Acquire grants a soft lock on the seat when no live lock by another
// holder exists and the seat is not in the ledger's booked set.  The
// booked set is queried before taking the shard lock so the ledger
// round trip never blocks other operations on the departure.  If the
// ledger is unreachable the acquire fails closed (reported as booked):
// optimistically granting would let a concurrent commit invalidate the
// lock.  Re-selection by the current holder extends the lock to a full
// fresh TTL.
func (r *Registry) Acquire(ctx context.Context, departureID uint64, seatNo, holder string) (AcquireResult, error) {
    booked, err := r.booked.BookedSeats(ctx, departureID)
    if err != nil {
        return AcquireResult{Status: StatusBooked}, err
    }
    if _, taken := booked[seatNo]; taken {
        return AcquireResult{Status: StatusBooked}, nil
    }

    d := r.shard(departureID, true)
    d.mu.Lock()
    defer d.mu.Unlock()

    now := r.now()
    if cur, ok := d.seats[seatNo]; ok && cur.expiresAt.After(now) && cur.holder != holder {
        return AcquireResult{Status: StatusHeldByOther, TimeLeft: cur.expiresAt.Sub(now)}, nil
    }
    exp := now.Add(r.ttl)
    d.seats[seatNo] = seatLock{holder: holder, acquiredAt: now, expiresAt: exp}
    return AcquireResult{Status: StatusGranted, ExpiresAt: exp}, nil
}

// Release removes the lock only when holder is the current owner, so a
// stale or duplicate release cannot evict a different holder's live
// lock.  It reports whether a lock was removed.
func (r *Registry) Release(departureID uint64, seatNo, holder string) bool {
    d := r.shard(departureID, false)
    if d == nil {
        return false
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    cur, ok := d.seats[seatNo]
    if !ok || cur.holder != holder {
        return false
    }
    delete(d.seats, seatNo)
    return true
}

// ReleaseAll removes every lock owned by holder across all departures
// and returns the affected pairs for broadcast.  Called on disconnect.
func (r *Registry) ReleaseAll(holder string) []SeatRef {
    r.mu.RLock()
    shards := make(map[uint64]*departureLocks, len(r.deps))
    for id, d := range r.deps {
        shards[id] = d
    }
    r.mu.RUnlock()

    var freed []SeatRef
    for id, d := range shards {
        d.mu.Lock()
        for seatNo, cur := range d.seats {
            if cur.holder == holder {
                delete(d.seats, seatNo)
                freed = append(freed, SeatRef{DepartureID: id, SeatNo: seatNo})
            }
        }
        d.mu.Unlock()
    }
    return freed
}

// SweepExpired removes locks whose expiry has passed, returning the
// affected pairs.  This is the only mechanism that reclaims a seat
// whose holder neither confirmed nor released it: it bounds how long a
// seat can appear stuck to other users.
func (r *Registry) SweepExpired() []SeatRef {
    r.mu.RLock()
    shards := make(map[uint64]*departureLocks, len(r.deps))
    for id, d := range r.deps {
        shards[id] = d
    }
    r.mu.RUnlock()

    now := r.now()
    var freed []SeatRef
    for id, d := range shards {
        d.mu.Lock()
        for seatNo, cur := range d.seats {
            if !cur.expiresAt.After(now) {
                delete(d.seats, seatNo)
                freed = append(freed, SeatRef{DepartureID: id, SeatNo: seatNo})
            }
        }
        d.mu.Unlock()
    }
    return freed
}

// ForceRelease clears any lock on the given seats regardless of owner.
// Called right after a successful commit: those seats are permanently
// booked now and any outstanding advisory lock on them is stale.
func (r *Registry) ForceRelease(departureID uint64, seats []string) []SeatRef {
    d := r.shard(departureID, false)
    if d == nil {
        return nil
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    var cleared []SeatRef
    for _, seatNo := range seats {
        if _, ok := d.seats[seatNo]; ok {
            delete(d.seats, seatNo)
            cleared = append(cleared, SeatRef{DepartureID: departureID, SeatNo: seatNo})
        }
    }
    return cleared
}

// Live returns the departure's live locks, excluding expired entries
// and, when exclude is non-empty, that holder's own locks.  Used for
// join snapshots.
func (r *Registry) Live(departureID uint64, exclude string) []Held {
    d := r.shard(departureID, false)
    if d == nil {
        return nil
    }
    d.mu.Lock()
    defer d.mu.Unlock()
    now := r.now()
    var out []Held
    for seatNo, cur := range d.seats {
        if !cur.expiresAt.After(now) || (exclude != "" && cur.holder == exclude) {
            continue
        }
        out = append(out, Held{SeatNo: seatNo, Holder: cur.holder, ExpiresAt: cur.expiresAt})
    }
    return out
}
