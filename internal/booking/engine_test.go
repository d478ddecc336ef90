package booking

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// fakeStore is an in-memory booking.Store with the same atomicity
// guarantees as the MySQL implementation: every write happens under one
// mutex, so the conflict check, the counter move and the insert are
// indivisible with respect to concurrent calls.
type fakeStore struct {
    mu         sync.Mutex
    departures map[uint64]*model.Departure
    bookings   map[string]*model.Booking

    // createErrs are popped and returned by CreateBooking before any
    // effect, to inject transient conflicts and ref-code collisions.
    createErrs []error
    creates    int
}

func newFakeStore(deps ...*model.Departure) *fakeStore {
    s := &fakeStore{
        departures: make(map[uint64]*model.Departure),
        bookings:   make(map[string]*model.Booking),
    }
    for _, d := range deps {
        cp := *d
        s.departures[d.ID] = &cp
    }
    return s
}

func (s *fakeStore) Departure(_ context.Context, id uint64) (*model.Departure, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    d, ok := s.departures[id]
    if !ok {
        return nil, ErrDepartureNotFound
    }
    cp := *d
    return &cp, nil
}

func (s *fakeStore) BookedSeats(_ context.Context, departureID uint64) (map[string]struct{}, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.bookedLocked(departureID), nil
}

func (s *fakeStore) bookedLocked(departureID uint64) map[string]struct{} {
    booked := make(map[string]struct{})
    for _, b := range s.bookings {
        if b.DepartureID != departureID || b.Status == model.BookingCancelled {
            continue
        }
        for _, seat := range b.Seats {
            booked[seat.SeatNo] = struct{}{}
        }
    }
    return booked
}

func (s *fakeStore) CreateBooking(_ context.Context, b *model.Booking) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.creates++
    if len(s.createErrs) > 0 {
        err := s.createErrs[0]
        s.createErrs = s.createErrs[1:]
        return err
    }
    d, ok := s.departures[b.DepartureID]
    if !ok {
        return ErrDepartureNotFound
    }
    if _, dup := s.bookings[b.RefCode]; dup {
        return ErrRefCodeTaken
    }
    booked := s.bookedLocked(b.DepartureID)
    var conflicts []string
    for _, seat := range b.Seats {
        if _, taken := booked[seat.SeatNo]; taken {
            conflicts = append(conflicts, seat.SeatNo)
        }
    }
    if len(conflicts) > 0 {
        return &SeatConflictError{Seats: conflicts}
    }
    if d.AvailableSeats < len(b.Seats) {
        return ErrInsufficientSeats
    }
    d.AvailableSeats -= len(b.Seats)
    b.ID = uint64(len(s.bookings) + 1)
    cp := *b
    s.bookings[b.RefCode] = &cp
    return nil
}

func (s *fakeStore) BookingByRef(_ context.Context, refCode string) (*model.Booking, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    b, ok := s.bookings[refCode]
    if !ok {
        return nil, ErrBookingNotFound
    }
    cp := *b
    return &cp, nil
}

func (s *fakeStore) CancelBooking(_ context.Context, refCode, reason string, refundCents uint32, at time.Time) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    b, ok := s.bookings[refCode]
    if !ok {
        return ErrBookingNotFound
    }
    if b.Status == model.BookingCancelled {
        return ErrAlreadyCancelled
    }
    b.Status = model.BookingCancelled
    b.CancelledAt = &at
    b.CancelReason = &reason
    b.RefundCents = &refundCents
    s.departures[b.DepartureID].AvailableSeats += len(b.Seats)
    return nil
}

func (s *fakeStore) available(departureID uint64) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.departures[departureID].AvailableSeats
}

// checkInventoryInvariant asserts availableSeats plus the seats of all
// non-cancelled bookings equals totalSeats, and that no two live
// bookings share a seat.
func (s *fakeStore) checkInventoryInvariant(t *testing.T, departureID uint64) {
    t.Helper()
    s.mu.Lock()
    defer s.mu.Unlock()
    d := s.departures[departureID]
    seen := make(map[string]string)
    sold := 0
    for ref, b := range s.bookings {
        if b.DepartureID != departureID || b.Status == model.BookingCancelled {
            continue
        }
        sold += len(b.Seats)
        for _, seat := range b.Seats {
            if prev, dup := seen[seat.SeatNo]; dup {
                t.Fatalf("seat %s sold to both %s and %s", seat.SeatNo, prev, ref)
            }
            seen[seat.SeatNo] = ref
        }
    }
    if d.AvailableSeats+sold != d.TotalSeats {
        t.Fatalf("inventory invariant broken: available=%d sold=%d total=%d", d.AvailableSeats, sold, d.TotalSeats)
    }
}

// recordingReleaser records ForceRelease calls from the engine.
type recordingReleaser struct {
    mu    sync.Mutex
    calls map[uint64][][]string
}

func newRecordingReleaser() *recordingReleaser {
    return &recordingReleaser{calls: make(map[uint64][][]string)}
}

func (r *recordingReleaser) ForceRelease(departureID uint64, seats []string) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.calls[departureID] = append(r.calls[departureID], seats)
}

func testDeparture() *model.Departure {
    return &model.Departure{
        ID:                  7,
        OriginCity:          "Tehran",
        OriginTerminal:      "Beyhaghi",
        DestinationCity:     "Isfahan",
        DestinationTerminal: "Kaveh",
        Operator:            "Royal Safar",
        DepartsAt:           time.Date(2030, 5, 20, 8, 0, 0, 0, time.UTC),
        ArrivesAt:           time.Date(2030, 5, 20, 14, 30, 0, 0, time.UTC),
        TotalSeats:          40,
        AvailableSeats:      40,
        PriceCents:          50000,
        Policy:              model.CancellationPolicy{Allowed: true, DeadlineHours: 24, RefundPercent: 70},
    }
}

func commitReq(seats ...string) *CommitRequest {
    req := &CommitRequest{
        DepartureID:   7,
        Contact:       model.Contact{Name: "Sara", Phone: "+98912000000"},
        PaymentMethod: "card",
    }
    for _, seatNo := range seats {
        req.Passengers = append(req.Passengers, model.Passenger{Name: "P " + seatNo, Age: 30})
        req.Seats = append(req.Seats, model.SeatSelection{SeatNo: seatNo, Multiplier: 1})
    }
    return req
}

func TestCommitSellsSeats(t *testing.T) {
    store := newFakeStore(testDeparture())
    releaser := newRecordingReleaser()
    eng := NewEngine(store, releaser, 3)

    b, err := eng.Commit(context.Background(), commitReq("3", "4"))
    if err != nil {
        t.Fatalf("commit: %v", err)
    }
    if len(b.RefCode) != 8 {
        t.Fatalf("ref code %q should be 8 characters", b.RefCode)
    }
    if b.Status != model.BookingConfirmed {
        t.Fatalf("status = %q, want confirmed", b.Status)
    }
    if b.Trip.OriginCity != "Tehran" || b.Trip.Operator != "Royal Safar" {
        t.Fatalf("trip snapshot not copied: %+v", b.Trip)
    }
    if b.Policy.DeadlineHours != 24 || b.Policy.RefundPercent != 70 {
        t.Fatalf("policy snapshot not copied: %+v", b.Policy)
    }
    if b.TotalCents != 100000 {
        t.Fatalf("total = %d, want 100000", b.TotalCents)
    }
    if got := store.available(7); got != 38 {
        t.Fatalf("available = %d, want 38", got)
    }
    store.checkInventoryInvariant(t, 7)

    releaser.mu.Lock()
    defer releaser.mu.Unlock()
    if len(releaser.calls[7]) != 1 || len(releaser.calls[7][0]) != 2 {
        t.Fatalf("expected one forced release of the two committed seats, got %+v", releaser.calls)
    }
}

func TestCommitValidation(t *testing.T) {
    store := newFakeStore(testDeparture())
    eng := NewEngine(store, nil, 3)

    cases := map[string]*CommitRequest{
        "nil request":        nil,
        "no passengers":      {DepartureID: 7, Contact: model.Contact{Name: "A", Phone: "1"}},
        "count mismatch":     {DepartureID: 7, Passengers: []model.Passenger{{Name: "A"}}, Seats: []model.SeatSelection{{SeatNo: "1", Multiplier: 1}, {SeatNo: "2", Multiplier: 1}}, Contact: model.Contact{Name: "A", Phone: "1"}},
        "missing contact":    {DepartureID: 7, Passengers: []model.Passenger{{Name: "A"}}, Seats: []model.SeatSelection{{SeatNo: "1", Multiplier: 1}}},
        "duplicate seat":     commitDup(),
        "zero multiplier":    {DepartureID: 7, Passengers: []model.Passenger{{Name: "A"}}, Seats: []model.SeatSelection{{SeatNo: "1"}}, Contact: model.Contact{Name: "A", Phone: "1"}},
        "nameless passenger": {DepartureID: 7, Passengers: []model.Passenger{{}}, Seats: []model.SeatSelection{{SeatNo: "1", Multiplier: 1}}, Contact: model.Contact{Name: "A", Phone: "1"}},
    }
    for name, req := range cases {
        if _, err := eng.Commit(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
            t.Errorf("%s: err = %v, want ErrInvalidRequest", name, err)
        }
    }
    if store.creates != 0 {
        t.Fatalf("validation failures must not reach the store, got %d creates", store.creates)
    }
}

func commitDup() *CommitRequest {
    req := commitReq("5")
    req.Passengers = append(req.Passengers, model.Passenger{Name: "B"})
    req.Seats = append(req.Seats, model.SeatSelection{SeatNo: "5", Multiplier: 1})
    return req
}

func TestCommitDepartureNotFound(t *testing.T) {
    eng := NewEngine(newFakeStore(), nil, 3)
    req := commitReq("1")
    req.DepartureID = 99
    if _, err := eng.Commit(context.Background(), req); !errors.Is(err, ErrDepartureNotFound) {
        t.Fatalf("err = %v, want ErrDepartureNotFound", err)
    }
}

func TestCommitSeatConflictNamesSeats(t *testing.T) {
    store := newFakeStore(testDeparture())
    eng := NewEngine(store, nil, 3)

    if _, err := eng.Commit(context.Background(), commitReq("3", "4")); err != nil {
        t.Fatalf("first commit: %v", err)
    }
    _, err := eng.Commit(context.Background(), commitReq("4", "5"))
    var conflict *SeatConflictError
    if !errors.As(err, &conflict) {
        t.Fatalf("err = %v, want SeatConflictError", err)
    }
    if len(conflict.Seats) != 1 || conflict.Seats[0] != "4" {
        t.Fatalf("conflicting seats = %v, want [4]", conflict.Seats)
    }
    if got := store.available(7); got != 38 {
        t.Fatalf("rejected commit moved the counter: available = %d", got)
    }
}

func TestCommitInsufficientInventory(t *testing.T) {
    dep := testDeparture()
    dep.AvailableSeats = 2
    // Simulate 38 already-sold seats without listing them: the fake
    // only checks the counter for capacity.
    store := newFakeStore(dep)
    eng := NewEngine(store, nil, 3)

    if _, err := eng.Commit(context.Background(), commitReq("1", "2")); err != nil {
        t.Fatalf("first commit: %v", err)
    }
    if _, err := eng.Commit(context.Background(), commitReq("3", "4")); !errors.Is(err, ErrInsufficientSeats) {
        t.Fatalf("err = %v, want ErrInsufficientSeats", err)
    }
    if got := store.available(7); got != 0 {
        t.Fatalf("available = %d, want 0 (never negative)", got)
    }
}

func TestConcurrentCommitsOverlappingSeat(t *testing.T) {
    store := newFakeStore(testDeparture())
    eng := NewEngine(store, nil, 3)

    const racers = 16
    var wg sync.WaitGroup
    errs := make([]error, racers)
    for i := 0; i < racers; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            _, errs[i] = eng.Commit(context.Background(), commitReq("14"))
        }(i)
    }
    wg.Wait()

    wins := 0
    for _, err := range errs {
        if err == nil {
            wins++
            continue
        }
        var conflict *SeatConflictError
        if !errors.As(err, &conflict) {
            t.Fatalf("loser got %v, want SeatConflictError", err)
        }
        if len(conflict.Seats) != 1 || conflict.Seats[0] != "14" {
            t.Fatalf("loser conflict seats = %v, want [14]", conflict.Seats)
        }
    }
    if wins != 1 {
        t.Fatalf("exactly one racer must win, got %d", wins)
    }
    store.checkInventoryInvariant(t, 7)
}

func TestConcurrentCommitsForLastSeats(t *testing.T) {
    dep := testDeparture()
    dep.AvailableSeats = 2
    store := newFakeStore(dep)
    eng := NewEngine(store, nil, 3)

    var wg sync.WaitGroup
    var errA, errB error
    wg.Add(2)
    go func() { defer wg.Done(); _, errA = eng.Commit(context.Background(), commitReq("1", "2")) }()
    go func() { defer wg.Done(); _, errB = eng.Commit(context.Background(), commitReq("3", "4")) }()
    wg.Wait()

    if (errA == nil) == (errB == nil) {
        t.Fatalf("exactly one commit must win: errA=%v errB=%v", errA, errB)
    }
    loser := errA
    if errA == nil {
        loser = errB
    }
    if !errors.Is(loser, ErrInsufficientSeats) {
        t.Fatalf("loser err = %v, want ErrInsufficientSeats", loser)
    }
    if got := store.available(7); got != 0 {
        t.Fatalf("available = %d, want 0 — a negative counter means oversell", got)
    }
}

func TestCommitRetriesTransientConflict(t *testing.T) {
    store := newFakeStore(testDeparture())
    store.createErrs = []error{ErrTxConflict, ErrTxConflict}
    eng := NewEngine(store, nil, 3)

    if _, err := eng.Commit(context.Background(), commitReq("8")); err != nil {
        t.Fatalf("commit should survive two transient conflicts: %v", err)
    }

    store = newFakeStore(testDeparture())
    store.createErrs = []error{ErrTxConflict, ErrTxConflict, ErrTxConflict}
    eng = NewEngine(store, nil, 3)
    if _, err := eng.Commit(context.Background(), commitReq("8")); !errors.Is(err, ErrCommitFailed) {
        t.Fatalf("err = %v, want ErrCommitFailed once retries are exhausted", err)
    }
}

func TestCommitRegeneratesRefCodeOnCollision(t *testing.T) {
    store := newFakeStore(testDeparture())
    store.createErrs = []error{ErrRefCodeTaken, ErrRefCodeTaken}
    eng := NewEngine(store, nil, 3)

    b, err := eng.Commit(context.Background(), commitReq("9"))
    if err != nil {
        t.Fatalf("commit: %v", err)
    }
    if b.RefCode == "" {
        t.Fatal("booking has no reference code")
    }
    if store.creates != 3 {
        t.Fatalf("expected 3 create attempts (2 collisions), got %d", store.creates)
    }
}

func TestTotalCents(t *testing.T) {
    dep := testDeparture() // base 50000
    seats := []model.SeatSelection{
        {SeatNo: "1", Multiplier: 1},
        {SeatNo: "2", Multiplier: 1.5},
    }
    if got := TotalCents(dep, seats); got != 125000 {
        t.Fatalf("total = %d, want 125000", got)
    }

    discount := uint32(40000)
    dep.DiscountPriceCents = &discount // scale by 0.8
    if got := TotalCents(dep, seats); got != 100000 {
        t.Fatalf("discounted total = %d, want 100000", got)
    }

    // A "discount" above the base price must not raise the total.
    higher := uint32(60000)
    dep.DiscountPriceCents = &higher
    if got := TotalCents(dep, seats); got != 125000 {
        t.Fatalf("total with higher discount price = %d, want 125000", got)
    }
}
