package booking

import (
    "context"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// Store is the durable surface the engines run against: the inventory
// store (departures) and the reservation ledger (bookings) behind one
// interface.  The two write operations are atomic: either every effect
// listed happens or none does.  The MySQL implementation lives in
// internal/repository; tests substitute an in-memory fake.
type Store interface {
    // Departure fetches a departure by ID.  Returns ErrDepartureNotFound
    // when absent.
    Departure(ctx context.Context, id uint64) (*model.Departure, error)

    // BookedSeats returns the seat numbers consumed by confirmed or
    // pending bookings of the departure.  Pending counts: it is the
    // stricter, double-booking-safe reading.
    BookedSeats(ctx context.Context, departureID uint64) (map[string]struct{}, error)

    // CreateBooking atomically re-checks the booking's seats against the
    // ledger, checks and decrements the departure's available-seat
    // counter, and inserts the booking.  On success the booking's ID is
    // populated.  Failure modes: *SeatConflictError, ErrInsufficientSeats,
    // ErrDepartureNotFound, ErrRefCodeTaken, ErrTxConflict.
    CreateBooking(ctx context.Context, b *model.Booking) error

    // BookingByRef fetches a booking, with its seats, by reference code.
    // Returns ErrBookingNotFound when absent.
    BookingByRef(ctx context.Context, refCode string) (*model.Booking, error)

    // CancelBooking atomically flips the booking to cancelled (recording
    // the timestamp, reason and refund) and increments the departure's
    // available-seat counter by the booking's seat count.  Returns
    // ErrBookingNotFound or ErrAlreadyCancelled; a concurrent duplicate
    // cancel observes ErrAlreadyCancelled, never a double increment.
    CancelBooking(ctx context.Context, refCode, reason string, refundCents uint32, at time.Time) error
}
