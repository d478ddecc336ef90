package model

import "time"

// Booking status values as stored in bookings.status.
const (
    BookingConfirmed = "confirmed"
    BookingPending   = "pending"
    BookingCancelled = "cancelled"
)

// Passenger holds the per-traveller details recorded with each seat.
type Passenger struct {
    Name   string `json:"name"`
    Age    int    `json:"age"`
    Gender string `json:"gender"`
}

// SeatSelection is one requested seat together with its price
// multiplier (window/sleeper seats may cost more than the base fare).
type SeatSelection struct {
    SeatNo     string  `json:"seat_no"`
    Multiplier float64 `json:"multiplier"`
}

// BookedSeat is a seat that belongs to a booking, paired with the
// passenger occupying it.
type BookedSeat struct {
    SeatNo     string    `json:"seat_no"`
    Multiplier float64   `json:"multiplier"`
    Passenger  Passenger `json:"passenger"`
}

// Contact is the point of contact for a booking.  At least a phone
// number or an email address must be present.
type Contact struct {
    Name  string `json:"name"`
    Phone string `json:"phone"`
    Email string `json:"email"`
}

// TripSnapshot is the copy of the departure's route and schedule taken
// at commit time.  A booking's printed itinerary is rendered from this
// snapshot, never from the live departure row, so later schedule edits
// do not rewrite past bookings.
type TripSnapshot struct {
    OriginCity          string    `json:"origin_city"`
    OriginTerminal      string    `json:"origin_terminal"`
    DestinationCity     string    `json:"destination_city"`
    DestinationTerminal string    `json:"destination_terminal"`
    Operator            string    `json:"operator"`
    DepartsAt           time.Time `json:"departs_at"`
    ArrivesAt           time.Time `json:"arrives_at"`
}

// Booking records one sale of seats on a departure.  RefCode is the
// public human-presentable reference (8 chars, A-Z0-9).  Seats lists
// every seat the booking consumes; the set of seat numbers across all
// non-cancelled bookings of a departure is disjoint.
type Booking struct {
    ID            uint64             // bookings.id
    RefCode       string             // bookings.ref_code (unique)
    DepartureID   uint64             // bookings.departure_id
    Seats         []BookedSeat       // booking_seats rows
    Contact       Contact            // bookings.contact_* columns
    PaymentMethod string             // bookings.payment_method
    TotalCents    uint32             // bookings.total_cents
    Status        string             // bookings.status
    Trip          TripSnapshot       // bookings snapshot columns
    Policy        CancellationPolicy // bookings policy snapshot columns
    CreatedAt     time.Time          // bookings.created_at
    CancelledAt   *time.Time         // bookings.cancelled_at (nullable)
    CancelReason  *string            // bookings.cancel_reason (nullable)
    RefundCents   *uint32            // bookings.refund_cents (nullable)
}

// SeatNumbers returns the seat numbers of the booking in order.
func (b *Booking) SeatNumbers() []string {
    out := make([]string, 0, len(b.Seats))
    for _, s := range b.Seats {
        out = append(out, s.SeatNo)
    }
    return out
}
