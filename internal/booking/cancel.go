package booking

import (
    "context"
    "math"

    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// CancelResult is returned on a successful cancellation.
type CancelResult struct {
    RefCode       string `json:"ref_code"`
    RefundCents   uint32 `json:"refund_cents"`
    RefundPercent int    `json:"refund_percent"`
    SeatsReleased int    `json:"seats_released"`
    Instructions  string `json:"instructions"`
}

// Cancel reverses a confirmed booking under its recorded policy
// snapshot.  The status flip and the inventory increment happen in one
// atomic store operation; a concurrent duplicate cancel gets
// ErrAlreadyCancelled and the counter moves exactly once.
func (e *Engine) Cancel(ctx context.Context, refCode, reason string) (*CancelResult, error) {
    b, err := e.store.BookingByRef(ctx, refCode)
    if err != nil {
        return nil, err
    }
    if b.Status == model.BookingCancelled {
        return nil, ErrAlreadyCancelled
    }

    now := e.now().UTC()
    if !now.Before(b.Trip.DepartsAt) {
        return nil, ErrJourneyCompleted
    }
    hoursLeft := b.Trip.DepartsAt.Sub(now).Hours()
    if !b.Policy.Allowed || hoursLeft < float64(b.Policy.DeadlineHours) {
        return nil, &WindowClosedError{DeadlineHours: b.Policy.DeadlineHours}
    }

    refund := uint32(math.Round(float64(b.TotalCents) * float64(b.Policy.RefundPercent) / 100))
    if err := e.store.CancelBooking(ctx, refCode, reason, refund, now); err != nil {
        return nil, err
    }

    return &CancelResult{
        RefCode:       b.RefCode,
        RefundCents:   refund,
        RefundPercent: b.Policy.RefundPercent,
        SeatsReleased: len(b.Seats),
        Instructions:  refundInstructions(b.PaymentMethod),
    }, nil
}

// refundInstructions maps the recorded payment-method tag to a short,
// passenger-facing note on how the refund is delivered.
func refundInstructions(method string) string {
    switch method {
    case "card":
        return "The refund will be returned to the original card within 5-7 business days."
    case "wallet":
        return "The refund has been credited to your wallet balance."
    case "cash":
        return "Collect the refund at the boarding terminal's ticket counter with your reference code."
    default:
        return "The refund will be issued through the original payment method."
    }
}
