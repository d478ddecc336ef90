// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names the publisher and consumer agree on.
const (
    BookingConfirmedQueue = "booking.confirmed"
    BookingCancelledQueue = "booking.cancelled"
)

// BookingConfirmedEvent is published when a booking is successfully
// committed.  It contains enough information for downstream consumers
// to log, notify, or trigger analytics without querying the primary
// database.
type BookingConfirmedEvent struct {
    RefCode         string   `json:"ref_code"`
    DepartureID     uint64   `json:"departure_id"`
    OriginCity      string   `json:"origin_city"`
    DestinationCity string   `json:"destination_city"`
    Operator        string   `json:"operator"`
    DepartsAt       string   `json:"departs_at"`
    Seats           []string `json:"seats"`
    TotalCents      uint32   `json:"total_cents"`
    ConfirmedAt     string   `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled and
// its seats returned to inventory.
type BookingCancelledEvent struct {
    RefCode     string `json:"ref_code"`
    RefundCents uint32 `json:"refund_cents"`
    Reason      string `json:"reason"`
    CancelledAt string `json:"cancelled_at"`
}
