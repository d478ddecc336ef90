package database

import (
    "context"
    "database/sql"
    "fmt"
    "log"
)

// Migrate creates the schema when it does not exist yet.  Statements
// are idempotent so the server can run them on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
    migrations := []string{
        createDeparturesTable,
        createBookingsTable,
        createBookingSeatsTable,
    }
    for i, stmt := range migrations {
        if _, err := db.ExecContext(ctx, stmt); err != nil {
            return fmt.Errorf("migration %d failed: %w", i+1, err)
        }
    }
    log.Printf("database: schema up to date (%d migrations)", len(migrations))
    return nil
}

const createDeparturesTable = `
CREATE TABLE IF NOT EXISTS departures (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    origin_city VARCHAR(100) NOT NULL,
    origin_terminal VARCHAR(100) NOT NULL,
    destination_city VARCHAR(100) NOT NULL,
    destination_terminal VARCHAR(100) NOT NULL,
    operator VARCHAR(100) NOT NULL,
    departs_at DATETIME NOT NULL,
    arrives_at DATETIME NOT NULL,
    total_seats INT NOT NULL,
    available_seats INT NOT NULL,
    price_cents INT UNSIGNED NOT NULL,
    discount_price_cents INT UNSIGNED NULL,
    amenities TEXT NOT NULL,
    cancel_allowed TINYINT(1) NOT NULL DEFAULT 1,
    cancel_deadline_hours INT NOT NULL,
    refund_percent INT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_departures_route (origin_city, destination_city, departs_at),
    CONSTRAINT chk_available_range CHECK (available_seats >= 0 AND available_seats <= total_seats)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    ref_code CHAR(8) NOT NULL,
    departure_id BIGINT UNSIGNED NOT NULL,
    status ENUM('confirmed', 'pending', 'cancelled') NOT NULL,
    contact_name VARCHAR(100) NOT NULL,
    contact_phone VARCHAR(32) NOT NULL DEFAULT '',
    contact_email VARCHAR(255) NOT NULL DEFAULT '',
    payment_method VARCHAR(32) NOT NULL DEFAULT '',
    total_cents INT UNSIGNED NOT NULL,
    origin_city VARCHAR(100) NOT NULL,
    origin_terminal VARCHAR(100) NOT NULL,
    destination_city VARCHAR(100) NOT NULL,
    destination_terminal VARCHAR(100) NOT NULL,
    operator VARCHAR(100) NOT NULL,
    departs_at DATETIME NOT NULL,
    arrives_at DATETIME NOT NULL,
    cancel_allowed TINYINT(1) NOT NULL,
    cancel_deadline_hours INT NOT NULL,
    refund_percent INT NOT NULL,
    created_at DATETIME NOT NULL,
    cancelled_at DATETIME NULL,
    cancel_reason VARCHAR(255) NULL,
    refund_cents INT UNSIGNED NULL,
    UNIQUE KEY uq_bookings_ref_code (ref_code),
    KEY idx_bookings_departure (departure_id, status),
    CONSTRAINT fk_bookings_departure FOREIGN KEY (departure_id) REFERENCES departures (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

const createBookingSeatsTable = `
CREATE TABLE IF NOT EXISTS booking_seats (
    id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    booking_id BIGINT UNSIGNED NOT NULL,
    departure_id BIGINT UNSIGNED NOT NULL,
    seat_no VARCHAR(8) NOT NULL,
    multiplier DOUBLE NOT NULL DEFAULT 1,
    passenger_name VARCHAR(100) NOT NULL,
    passenger_age INT NOT NULL DEFAULT 0,
    passenger_gender VARCHAR(16) NOT NULL DEFAULT '',
    KEY idx_booking_seats_departure (departure_id, seat_no),
    CONSTRAINT fk_booking_seats_booking FOREIGN KEY (booking_id) REFERENCES bookings (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
