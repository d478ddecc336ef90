// Package repository contains the MySQL data access layer: the
// inventory store (departures) and the reservation ledger (bookings and
// their seats).  All timestamps are stored as UTC DATETIME values; the
// DSN's parseTime=true turns them back into time.Time on scan.
package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/iliyamo/bus-seat-reservation/internal/booking"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// dbTimeFormat is the DATETIME layout used on inserts.
const dbTimeFormat = "2006-01-02 15:04:05"

// DepartureRepo manages persistence for departures.  The available-seat
// counter is deliberately not writable here: the only mutations go
// through ReservationStore's atomic commit and cancel transactions.
// New departures are inserted with a fixed counter (available = total);
// batch inventory generators use Create and nothing else.
type DepartureRepo struct {
    db *sql.DB
}

// NewDepartureRepo returns a DepartureRepo bound to the given database.
func NewDepartureRepo(db *sql.DB) *DepartureRepo { return &DepartureRepo{db: db} }

const departureColumns = `id, origin_city, origin_terminal, destination_city, destination_terminal,
    operator, departs_at, arrives_at, total_seats, available_seats, price_cents,
    discount_price_cents, amenities, cancel_allowed, cancel_deadline_hours, refund_percent,
    created_at, updated_at`

// Create inserts a new departure.  AvailableSeats is forced to
// TotalSeats regardless of what the caller set: a fresh departure
// always starts fully available.  The generated ID is populated on d.
func (r *DepartureRepo) Create(ctx context.Context, d *model.Departure) error {
    const q = `INSERT INTO departures
        (origin_city, origin_terminal, destination_city, destination_terminal, operator,
         departs_at, arrives_at, total_seats, available_seats, price_cents,
         discount_price_cents, amenities, cancel_allowed, cancel_deadline_hours, refund_percent)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    d.AvailableSeats = d.TotalSeats
    var discount interface{}
    if d.DiscountPriceCents != nil {
        discount = *d.DiscountPriceCents
    }
    res, err := r.db.ExecContext(ctx, q,
        d.OriginCity, d.OriginTerminal, d.DestinationCity, d.DestinationTerminal, d.Operator,
        d.DepartsAt.UTC().Format(dbTimeFormat), d.ArrivesAt.UTC().Format(dbTimeFormat),
        d.TotalSeats, d.AvailableSeats, d.PriceCents,
        discount, strings.Join(d.Amenities, ","),
        d.Policy.Allowed, d.Policy.DeadlineHours, d.Policy.RefundPercent,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    d.ID = uint64(id)
    return nil
}

// GetByID fetches a departure.  Returns booking.ErrDepartureNotFound
// when no row exists.
func (r *DepartureRepo) GetByID(ctx context.Context, id uint64) (*model.Departure, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+departureColumns+` FROM departures WHERE id = ?`, id)
    return scanDeparture(row)
}

// List returns departures, optionally filtered by origin and
// destination city, soonest first.
func (r *DepartureRepo) List(ctx context.Context, originCity, destinationCity string) ([]model.Departure, error) {
    q := `SELECT ` + departureColumns + ` FROM departures`
    var conds []string
    var args []interface{}
    if originCity != "" {
        conds = append(conds, "origin_city = ?")
        args = append(args, originCity)
    }
    if destinationCity != "" {
        conds = append(conds, "destination_city = ?")
        args = append(args, destinationCity)
    }
    if len(conds) > 0 {
        q += " WHERE " + strings.Join(conds, " AND ")
    }
    q += " ORDER BY departs_at ASC"

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Departure
    for rows.Next() {
        d, err := scanDeparture(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *d)
    }
    return out, rows.Err()
}

type rowScanner interface {
    Scan(dest ...interface{}) error
}

func scanDeparture(row rowScanner) (*model.Departure, error) {
    var d model.Departure
    var discount sql.NullInt64
    var amenities string
    var departsAt, arrivesAt, createdAt, updatedAt time.Time
    err := row.Scan(
        &d.ID, &d.OriginCity, &d.OriginTerminal, &d.DestinationCity, &d.DestinationTerminal,
        &d.Operator, &departsAt, &arrivesAt, &d.TotalSeats, &d.AvailableSeats, &d.PriceCents,
        &discount, &amenities, &d.Policy.Allowed, &d.Policy.DeadlineHours, &d.Policy.RefundPercent,
        &createdAt, &updatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, booking.ErrDepartureNotFound
    }
    if err != nil {
        return nil, err
    }
    if discount.Valid {
        v := uint32(discount.Int64)
        d.DiscountPriceCents = &v
    }
    if amenities != "" {
        d.Amenities = strings.Split(amenities, ",")
    }
    d.DepartsAt, d.ArrivesAt = departsAt.UTC(), arrivesAt.UTC()
    d.CreatedAt, d.UpdatedAt = createdAt.UTC(), updatedAt.UTC()
    return &d, nil
}
