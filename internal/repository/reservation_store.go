package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/bus-seat-reservation/internal/booking"
    "github.com/iliyamo/bus-seat-reservation/internal/model"
)

// MySQL server error numbers this store maps to domain errors.
const (
    mysqlErrDupEntry        = 1062
    mysqlErrDeadlock        = 1213
    mysqlErrLockWaitTimeout = 1205
)

// ReservationStore is the MySQL implementation of booking.Store.  It
// spans the departures table (inventory store) and the bookings /
// booking_seats tables (reservation ledger).  The two write paths take
// a row lock on the departure (SELECT ... FOR UPDATE), which serializes
// commits and cancellations on the same departure while leaving other
// departures fully parallel — exactly the contention granularity the
// engines require.
type ReservationStore struct {
    db         *sql.DB
    departures *DepartureRepo
}

// NewReservationStore builds a store over the shared database handle.
func NewReservationStore(db *sql.DB, departures *DepartureRepo) *ReservationStore {
    return &ReservationStore{db: db, departures: departures}
}

// Departure implements booking.Store.
func (s *ReservationStore) Departure(ctx context.Context, id uint64) (*model.Departure, error) {
    return s.departures.GetByID(ctx, id)
}

// BookedSeats returns the seat numbers consumed by confirmed or pending
// bookings of the departure.  Read outside any transaction; the
// decisive check happens again inside CreateBooking.
func (s *ReservationStore) BookedSeats(ctx context.Context, departureID uint64) (map[string]struct{}, error) {
    const q = `SELECT bs.seat_no
               FROM booking_seats bs
               JOIN bookings b ON b.id = bs.booking_id
               WHERE bs.departure_id = ? AND b.status IN ('confirmed', 'pending')`
    rows, err := s.db.QueryContext(ctx, q, departureID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    booked := make(map[string]struct{})
    for rows.Next() {
        var seatNo string
        if err := rows.Scan(&seatNo); err != nil {
            return nil, err
        }
        booked[seatNo] = struct{}{}
    }
    return booked, rows.Err()
}

// CreateBooking implements booking.Store.  Inside one transaction it
// locks the departure row, re-checks the requested seats against the
// ledger, verifies and decrements the available-seat counter, and
// inserts the booking with its seats.  Either every effect happens or
// none does.
func (s *ReservationStore) CreateBooking(ctx context.Context, b *model.Booking) error {
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var available int
    err = tx.QueryRowContext(ctx,
        `SELECT available_seats FROM departures WHERE id = ? FOR UPDATE`, b.DepartureID,
    ).Scan(&available)
    if errors.Is(err, sql.ErrNoRows) {
        return booking.ErrDepartureNotFound
    }
    if err != nil {
        return mapMySQLError(err)
    }

    conflicts, err := s.conflictingSeatsTx(ctx, tx, b.DepartureID, b.SeatNumbers())
    if err != nil {
        return mapMySQLError(err)
    }
    if len(conflicts) > 0 {
        return &booking.SeatConflictError{Seats: conflicts}
    }
    if available < len(b.Seats) {
        return booking.ErrInsufficientSeats
    }

    res, err := tx.ExecContext(ctx,
        `UPDATE departures SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`,
        len(b.Seats), b.DepartureID, len(b.Seats),
    )
    if err != nil {
        return mapMySQLError(err)
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return booking.ErrTxConflict
    }

    insert, err := tx.ExecContext(ctx,
        `INSERT INTO bookings
            (ref_code, departure_id, status, contact_name, contact_phone, contact_email,
             payment_method, total_cents,
             origin_city, origin_terminal, destination_city, destination_terminal, operator,
             departs_at, arrives_at,
             cancel_allowed, cancel_deadline_hours, refund_percent, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
        b.RefCode, b.DepartureID, b.Status,
        b.Contact.Name, b.Contact.Phone, b.Contact.Email,
        b.PaymentMethod, b.TotalCents,
        b.Trip.OriginCity, b.Trip.OriginTerminal, b.Trip.DestinationCity, b.Trip.DestinationTerminal,
        b.Trip.Operator,
        b.Trip.DepartsAt.UTC().Format(dbTimeFormat), b.Trip.ArrivesAt.UTC().Format(dbTimeFormat),
        b.Policy.Allowed, b.Policy.DeadlineHours, b.Policy.RefundPercent,
        b.CreatedAt.UTC().Format(dbTimeFormat),
    )
    if err != nil {
        if isDuplicate(err) {
            return booking.ErrRefCodeTaken
        }
        return mapMySQLError(err)
    }
    id, err := insert.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)

    if err := s.insertSeatsTx(ctx, tx, b); err != nil {
        return mapMySQLError(err)
    }
    if err := tx.Commit(); err != nil {
        return mapMySQLError(err)
    }
    committed = true
    return nil
}

// conflictingSeatsTx returns which of the given seats already belong to
// a confirmed or pending booking of the departure.  Runs inside the
// commit transaction so the answer cannot go stale before the insert.
func (s *ReservationStore) conflictingSeatsTx(ctx context.Context, tx *sql.Tx, departureID uint64, seats []string) ([]string, error) {
    if len(seats) == 0 {
        return nil, nil
    }
    placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seats)), ",")
    q := `SELECT DISTINCT bs.seat_no
          FROM booking_seats bs
          JOIN bookings b ON b.id = bs.booking_id
          WHERE bs.departure_id = ? AND b.status IN ('confirmed', 'pending')
            AND bs.seat_no IN (` + placeholders + `)`
    args := make([]interface{}, 0, len(seats)+1)
    args = append(args, departureID)
    for _, seatNo := range seats {
        args = append(args, seatNo)
    }
    rows, err := tx.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var conflicts []string
    for rows.Next() {
        var seatNo string
        if err := rows.Scan(&seatNo); err != nil {
            return nil, err
        }
        conflicts = append(conflicts, seatNo)
    }
    return conflicts, rows.Err()
}

func (s *ReservationStore) insertSeatsTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
    q := `INSERT INTO booking_seats
            (booking_id, departure_id, seat_no, multiplier, passenger_name, passenger_age, passenger_gender)
          VALUES `
    args := make([]interface{}, 0, len(b.Seats)*7)
    for i, seat := range b.Seats {
        if i > 0 {
            q += ","
        }
        q += "(?, ?, ?, ?, ?, ?, ?)"
        args = append(args, b.ID, b.DepartureID, seat.SeatNo, seat.Multiplier,
            seat.Passenger.Name, seat.Passenger.Age, seat.Passenger.Gender)
    }
    _, err := tx.ExecContext(ctx, q, args...)
    return err
}

// BookingByRef implements booking.Store.  Reference codes are stored
// upper-case; lookups are case-insensitive.
func (s *ReservationStore) BookingByRef(ctx context.Context, refCode string) (*model.Booking, error) {
    refCode = strings.ToUpper(strings.TrimSpace(refCode))
    var (
        b           model.Booking
        departsAt   time.Time
        arrivesAt   time.Time
        createdAt   time.Time
        cancelledAt sql.NullTime
        reason      sql.NullString
        refund      sql.NullInt64
    )
    err := s.db.QueryRowContext(ctx,
        `SELECT id, ref_code, departure_id, status, contact_name, contact_phone, contact_email,
                payment_method, total_cents,
                origin_city, origin_terminal, destination_city, destination_terminal, operator,
                departs_at, arrives_at,
                cancel_allowed, cancel_deadline_hours, refund_percent,
                created_at, cancelled_at, cancel_reason, refund_cents
         FROM bookings WHERE ref_code = ?`, refCode,
    ).Scan(
        &b.ID, &b.RefCode, &b.DepartureID, &b.Status,
        &b.Contact.Name, &b.Contact.Phone, &b.Contact.Email,
        &b.PaymentMethod, &b.TotalCents,
        &b.Trip.OriginCity, &b.Trip.OriginTerminal, &b.Trip.DestinationCity, &b.Trip.DestinationTerminal,
        &b.Trip.Operator, &departsAt, &arrivesAt,
        &b.Policy.Allowed, &b.Policy.DeadlineHours, &b.Policy.RefundPercent,
        &createdAt, &cancelledAt, &reason, &refund,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return nil, booking.ErrBookingNotFound
    }
    if err != nil {
        return nil, err
    }
    b.Trip.DepartsAt, b.Trip.ArrivesAt = departsAt.UTC(), arrivesAt.UTC()
    b.CreatedAt = createdAt.UTC()
    if cancelledAt.Valid {
        t := cancelledAt.Time.UTC()
        b.CancelledAt = &t
    }
    if reason.Valid {
        r := reason.String
        b.CancelReason = &r
    }
    if refund.Valid {
        v := uint32(refund.Int64)
        b.RefundCents = &v
    }

    rows, err := s.db.QueryContext(ctx,
        `SELECT seat_no, multiplier, passenger_name, passenger_age, passenger_gender
         FROM booking_seats WHERE booking_id = ? ORDER BY id`, b.ID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var seat model.BookedSeat
        if err := rows.Scan(&seat.SeatNo, &seat.Multiplier,
            &seat.Passenger.Name, &seat.Passenger.Age, &seat.Passenger.Gender); err != nil {
            return nil, err
        }
        b.Seats = append(b.Seats, seat)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return &b, nil
}

// CancelBooking implements booking.Store.  The status flip and the
// inventory increment share one transaction; the guarded UPDATE makes a
// concurrent duplicate cancel observe ErrAlreadyCancelled instead of a
// second increment.
func (s *ReservationStore) CancelBooking(ctx context.Context, refCode, reason string, refundCents uint32, at time.Time) error {
    refCode = strings.ToUpper(strings.TrimSpace(refCode))
    tx, err := s.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    var (
        bookingID   uint64
        departureID uint64
        status      string
    )
    err = tx.QueryRowContext(ctx,
        `SELECT id, departure_id, status FROM bookings WHERE ref_code = ? FOR UPDATE`, refCode,
    ).Scan(&bookingID, &departureID, &status)
    if errors.Is(err, sql.ErrNoRows) {
        return booking.ErrBookingNotFound
    }
    if err != nil {
        return mapMySQLError(err)
    }
    if status == model.BookingCancelled {
        return booking.ErrAlreadyCancelled
    }

    res, err := tx.ExecContext(ctx,
        `UPDATE bookings SET status = ?, cancelled_at = ?, cancel_reason = ?, refund_cents = ?
         WHERE id = ? AND status <> ?`,
        model.BookingCancelled, at.UTC().Format(dbTimeFormat), reason, refundCents,
        bookingID, model.BookingCancelled,
    )
    if err != nil {
        return mapMySQLError(err)
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return booking.ErrAlreadyCancelled
    }

    var seatCount int
    if err := tx.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM booking_seats WHERE booking_id = ?`, bookingID,
    ).Scan(&seatCount); err != nil {
        return mapMySQLError(err)
    }
    if _, err := tx.ExecContext(ctx,
        `UPDATE departures SET available_seats = available_seats + ? WHERE id = ?`,
        seatCount, departureID,
    ); err != nil {
        return mapMySQLError(err)
    }
    if err := tx.Commit(); err != nil {
        return mapMySQLError(err)
    }
    committed = true
    return nil
}

func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == mysqlErrDupEntry
}

// mapMySQLError translates transient concurrency failures (deadlock,
// lock wait timeout) into booking.ErrTxConflict so the engine re-runs
// the attempt from fresh state.  Everything else passes through.
func mapMySQLError(err error) error {
    var me *mysql.MySQLError
    if errors.As(err, &me) && (me.Number == mysqlErrDeadlock || me.Number == mysqlErrLockWaitTimeout) {
        return booking.ErrTxConflict
    }
    return err
}
