package booking

import (
    "errors"
    "fmt"
    "strings"
)

// Sentinel errors returned by the commit and cancellation engines and by
// Store implementations.  Callers should compare with errors.Is; the two
// structured errors below carry details and are matched with errors.As.
var (
    ErrInvalidRequest    = errors.New("invalid booking request")
    ErrDepartureNotFound = errors.New("departure not found")
    ErrInsufficientSeats = errors.New("not enough available seats")
    ErrCommitFailed      = errors.New("booking commit failed after retries")
    ErrBookingNotFound   = errors.New("booking not found")
    ErrAlreadyCancelled  = errors.New("booking already cancelled")
    ErrJourneyCompleted  = errors.New("departure time has already passed")

    // ErrTxConflict signals that the atomic write lost to a concurrent
    // writer and the whole attempt should be re-run from fresh state.
    ErrTxConflict = errors.New("transaction conflict")

    // ErrRefCodeTaken signals a reference-code collision against the
    // ledger's uniqueness constraint; the engine regenerates the code.
    ErrRefCodeTaken = errors.New("reference code already in use")
)

// SeatConflictError reports the exact seats that are already consumed by
// a confirmed or pending booking, so the caller can re-offer alternatives.
type SeatConflictError struct {
    Seats []string
}

func (e *SeatConflictError) Error() string {
    return fmt.Sprintf("seats already booked: %s", strings.Join(e.Seats, ", "))
}

// WindowClosedError reports a cancellation rejected by policy, naming the
// deadline so the caller can show it to the passenger.
type WindowClosedError struct {
    DeadlineHours int
}

func (e *WindowClosedError) Error() string {
    return fmt.Sprintf("cancellation window closed (deadline %d hours before departure)", e.DeadlineHours)
}
