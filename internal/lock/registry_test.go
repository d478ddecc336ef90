package lock

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"
)

// fakeLedger is a BookedSource over a mutable in-memory booked set,
// with an injectable failure to exercise the fail-closed path.
type fakeLedger struct {
    mu     sync.Mutex
    booked map[uint64]map[string]struct{}
    err    error
}

func newFakeLedger() *fakeLedger {
    return &fakeLedger{booked: make(map[uint64]map[string]struct{})}
}

func (l *fakeLedger) book(departureID uint64, seats ...string) {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.booked[departureID] == nil {
        l.booked[departureID] = make(map[string]struct{})
    }
    for _, s := range seats {
        l.booked[departureID][s] = struct{}{}
    }
}

func (l *fakeLedger) BookedSeats(_ context.Context, departureID uint64) (map[string]struct{}, error) {
    l.mu.Lock()
    defer l.mu.Unlock()
    if l.err != nil {
        return nil, l.err
    }
    out := make(map[string]struct{}, len(l.booked[departureID]))
    for s := range l.booked[departureID] {
        out[s] = struct{}{}
    }
    return out, nil
}

const ttl = 2 * time.Minute

func newTestRegistry() (*Registry, *fakeLedger, *time.Time) {
    ledger := newFakeLedger()
    r := NewRegistry(ledger, ttl)
    now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
    clock := &now
    r.now = func() time.Time { return *clock }
    return r, ledger, clock
}

func TestAcquireGrantAndConflict(t *testing.T) {
    r, _, _ := newTestRegistry()
    ctx := context.Background()

    res, err := r.Acquire(ctx, 1, "14", "alice")
    if err != nil || res.Status != StatusGranted {
        t.Fatalf("alice: %+v err=%v, want granted", res, err)
    }

    res, err = r.Acquire(ctx, 1, "14", "bob")
    if err != nil || res.Status != StatusHeldByOther {
        t.Fatalf("bob: %+v err=%v, want held by other", res, err)
    }
    if res.TimeLeft <= 0 || res.TimeLeft > ttl {
        t.Fatalf("time left = %v, want within (0, %v]", res.TimeLeft, ttl)
    }

    // A different seat on the same departure is unaffected.
    if res, _ := r.Acquire(ctx, 1, "15", "bob"); res.Status != StatusGranted {
        t.Fatalf("seat 15: %+v, want granted", res)
    }

    if !r.Release(1, "14", "alice") {
        t.Fatal("alice's release should succeed")
    }
    if res, _ := r.Acquire(ctx, 1, "14", "bob"); res.Status != StatusGranted {
        t.Fatalf("after release: %+v, want granted", res)
    }
}

func TestAcquireBookedSeat(t *testing.T) {
    r, ledger, _ := newTestRegistry()
    ledger.book(1, "7")
    if res, err := r.Acquire(context.Background(), 1, "7", "alice"); err != nil || res.Status != StatusBooked {
        t.Fatalf("res=%+v err=%v, want booked", res, err)
    }
}

func TestAcquireFailsClosedOnLedgerError(t *testing.T) {
    r, ledger, _ := newTestRegistry()
    ledger.err = errors.New("ledger down")
    res, err := r.Acquire(context.Background(), 1, "7", "alice")
    if err == nil {
        t.Fatal("expected the ledger error to surface")
    }
    if res.Status != StatusBooked {
        t.Fatalf("status = %v, want booked (fail closed)", res.Status)
    }
    // The failed acquire must not have left a lock behind.
    ledger.err = nil
    if res, _ := r.Acquire(context.Background(), 1, "7", "bob"); res.Status != StatusGranted {
        t.Fatalf("after recovery: %+v, want granted", res)
    }
}

func TestLockExpiry(t *testing.T) {
    r, _, clock := newTestRegistry()
    ctx := context.Background()

    if res, _ := r.Acquire(ctx, 1, "14", "alice"); res.Status != StatusGranted {
        t.Fatalf("alice should be granted: %+v", res)
    }

    *clock = clock.Add(ttl - time.Second)
    if res, _ := r.Acquire(ctx, 1, "14", "bob"); res.Status != StatusHeldByOther {
        t.Fatalf("just before expiry: %+v, want held by other", res)
    }

    *clock = clock.Add(2 * time.Second) // now past expiry
    if res, _ := r.Acquire(ctx, 1, "14", "bob"); res.Status != StatusGranted {
        t.Fatalf("after expiry: %+v, want granted", res)
    }
}

func TestReselectionExtendsOwnLock(t *testing.T) {
    r, _, clock := newTestRegistry()
    ctx := context.Background()

    r.Acquire(ctx, 1, "14", "alice")
    *clock = clock.Add(90 * time.Second)
    res, _ := r.Acquire(ctx, 1, "14", "alice")
    if res.Status != StatusGranted {
        t.Fatalf("re-selection: %+v, want granted", res)
    }
    if got := res.ExpiresAt.Sub(*clock); got != ttl {
        t.Fatalf("re-selection expiry = %v from now, want a full %v", got, ttl)
    }
}

func TestReleaseWrongHolderIsNoop(t *testing.T) {
    r, _, _ := newTestRegistry()
    ctx := context.Background()

    r.Acquire(ctx, 1, "14", "alice")
    if r.Release(1, "14", "bob") {
        t.Fatal("bob must not be able to release alice's lock")
    }
    if res, _ := r.Acquire(ctx, 1, "14", "carol"); res.Status != StatusHeldByOther {
        t.Fatalf("alice's lock should still stand: %+v", res)
    }
}

func TestReleaseAllSpansDepartures(t *testing.T) {
    r, _, _ := newTestRegistry()
    ctx := context.Background()

    r.Acquire(ctx, 1, "14", "alice")
    r.Acquire(ctx, 2, "3", "alice")
    r.Acquire(ctx, 2, "4", "bob")

    freed := r.ReleaseAll("alice")
    if len(freed) != 2 {
        t.Fatalf("freed %v, want alice's two locks", freed)
    }
    for _, ref := range freed {
        if res, _ := r.Acquire(ctx, ref.DepartureID, ref.SeatNo, "carol"); res.Status != StatusGranted {
            t.Fatalf("seat %v should be free after disconnect: %+v", ref, res)
        }
    }
    if res, _ := r.Acquire(ctx, 2, "4", "carol"); res.Status != StatusHeldByOther {
        t.Fatalf("bob's lock must survive alice's disconnect: %+v", res)
    }
}

func TestSweepExpiredReturnsOnlyExpired(t *testing.T) {
    r, _, clock := newTestRegistry()
    ctx := context.Background()

    r.Acquire(ctx, 1, "14", "alice")
    *clock = clock.Add(ttl / 2)
    r.Acquire(ctx, 1, "15", "bob")
    *clock = clock.Add(ttl/2 + time.Second) // alice expired, bob alive

    freed := r.SweepExpired()
    if len(freed) != 1 || freed[0].SeatNo != "14" {
        t.Fatalf("freed = %v, want only seat 14", freed)
    }
    if res, _ := r.Acquire(ctx, 1, "15", "carol"); res.Status != StatusHeldByOther {
        t.Fatalf("bob's live lock was swept: %+v", res)
    }
}

func TestForceReleaseClearsAnyHolder(t *testing.T) {
    r, ledger, _ := newTestRegistry()
    ctx := context.Background()

    r.Acquire(ctx, 1, "3", "third-party")
    cleared := r.ForceRelease(1, []string{"3", "4"})
    if len(cleared) != 1 || cleared[0].SeatNo != "3" {
        t.Fatalf("cleared = %v, want only the held seat 3", cleared)
    }

    // The seats are booked now; any later select is terminal.
    ledger.book(1, "3", "4")
    if res, _ := r.Acquire(ctx, 1, "3", "anyone"); res.Status != StatusBooked {
        t.Fatalf("seat 3 after commit: %+v, want booked", res)
    }
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
    r, _, _ := newTestRegistry()
    ctx := context.Background()

    const racers = 32
    var wg sync.WaitGroup
    results := make([]Status, racers)
    for i := 0; i < racers; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            res, err := r.Acquire(ctx, 1, "14", string(rune('a'+i)))
            if err != nil {
                t.Errorf("racer %d: %v", i, err)
            }
            results[i] = res.Status
        }(i)
    }
    wg.Wait()

    wins := 0
    for _, st := range results {
        switch st {
        case StatusGranted:
            wins++
        case StatusHeldByOther:
        default:
            t.Fatalf("unexpected status %v", st)
        }
    }
    if wins != 1 {
        t.Fatalf("exactly one racer must win the seat, got %d", wins)
    }
}

func TestLiveSnapshotExcludesRequester(t *testing.T) {
    r, _, _ := newTestRegistry()
    ctx := context.Background()

    r.Acquire(ctx, 1, "14", "alice")
    r.Acquire(ctx, 1, "15", "bob")

    held := r.Live(1, "alice")
    if len(held) != 1 || held[0].SeatNo != "15" || held[0].Holder != "bob" {
        t.Fatalf("held = %+v, want only bob's seat 15", held)
    }
}
