package config // package config loads application configuration from environment variables

import (
    "log"  // log is used to report configuration errors and halt execution
    "os"   // os provides access to environment variables
    "time" // time parses the duration-valued tunables
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Product policy constants (lock TTL, sweep
// interval, cancellation deadline, refund percentage) are tunables with
// defaults, not hard-coded values.
type Config struct {
    Env           string // application environment (e.g. "dev", "prod")
    Port          string // HTTP port to listen on
    DBUser        string // database username
    DBPass        string // database password (optional)
    DBHost        string // database host address
    DBPort        string // database port number
    DBName        string // database name
    JWTSecret     string // secret used to sign admin JWTs
    AccessTTLMin  int    // admin access token time-to-live in minutes
    BcryptCost    int    // bcrypt cost used when hashing ADMIN_PASSWORD at boot
    AdminUser     string // username of the single shared admin credential
    AdminPassHash string // bcrypt hash of the admin password

    LockTTL             time.Duration // how long a granted soft lock lives
    SweepInterval       time.Duration // cadence of the expired-lock sweep
    CancelDeadlineHours int           // default cancellation deadline for new departures
    RefundPercent       int           // default refund percentage for new departures
    CommitRetries       int           // bounded retries of the atomic commit step
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.  The admin
// credential accepts either ADMIN_PASSWORD_HASH (a bcrypt hash) or, for
// development convenience, a plain ADMIN_PASSWORD which main hashes at
// boot.
func Load() Config {
    return Config{
        Env:           must("APP_ENV"),
        Port:          must("APP_PORT"),
        DBUser:        must("DB_USER"),
        DBPass:        os.Getenv("DB_PASS"),
        DBHost:        must("DB_HOST"),
        DBPort:        must("DB_PORT"),
        DBName:        must("DB_NAME"),
        JWTSecret:     must("JWT_SECRET"),
        AccessTTLMin:  envInt("ACCESS_TOKEN_TTL_MIN", 60),
        BcryptCost:    envInt("BCRYPT_COST", 10),
        AdminUser:     must("ADMIN_USERNAME"),
        AdminPassHash: os.Getenv("ADMIN_PASSWORD_HASH"),

        LockTTL:             envDur("SEAT_LOCK_TTL", 2*time.Minute),
        SweepInterval:       envDur("LOCK_SWEEP_INTERVAL", 30*time.Second),
        CancelDeadlineHours: envInt("CANCEL_DEADLINE_HOURS", 24),
        RefundPercent:       envInt("REFUND_PERCENT", 70),
        CommitRetries:       envInt("COMMIT_RETRIES", 3),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
