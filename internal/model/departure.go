package model

import "time"

// Departure is one scheduled bus trip instance with its own seat
// inventory.  TotalSeats is fixed at creation; AvailableSeats is only
// ever adjusted by the booking commit and cancellation paths, inside
// their transactions.  The invariant 0 <= AvailableSeats <= TotalSeats
// holds at all times.
type Departure struct {
    ID                  uint64              // departures.id
    OriginCity          string              // departures.origin_city
    OriginTerminal      string              // departures.origin_terminal
    DestinationCity     string              // departures.destination_city
    DestinationTerminal string              // departures.destination_terminal
    Operator            string              // departures.operator
    DepartsAt           time.Time           // departures.departs_at (UTC)
    ArrivesAt           time.Time           // departures.arrives_at (UTC)
    TotalSeats          int                 // departures.total_seats
    AvailableSeats      int                 // departures.available_seats
    PriceCents          uint32              // departures.price_cents
    DiscountPriceCents  *uint32             // departures.discount_price_cents (nullable)
    Amenities           []string            // departures.amenities (comma-joined in storage)
    Policy              CancellationPolicy  // cancellation terms advertised for this trip
    CreatedAt           time.Time           // departures.created_at
    UpdatedAt           time.Time           // departures.updated_at
}

// CancellationPolicy describes the cancellation terms of a departure.
// The policy is copied into each booking at commit time so that later
// edits to the departure cannot retroactively change the terms a
// passenger bought under.
type CancellationPolicy struct {
    Allowed       bool // whether cancellation is permitted at all
    DeadlineHours int  // latest cancellation point, in hours before departure
    RefundPercent int  // percentage of the total refunded on cancellation
}
