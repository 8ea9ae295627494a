package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func IntFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// LedgerEventsEnabled turns on the ledger event outbox and its Pub/Sub dispatcher.
//
// Set via env:
// - LEDGER_EVENTS_ENABLED=true
func LedgerEventsEnabled() bool {
	return boolFromEnv("LEDGER_EVENTS_ENABLED")
}

// SkipMigrations disables AutoMigrate on server startup.
func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS")
}

// LedgerLocation is the facility timezone used to map a payment date onto a ledger period.
//
// Set via env:
// - LEDGER_TIMEZONE=Asia/Kolkata (default UTC)
func LedgerLocation() *time.Location {
	name := strings.TrimSpace(os.Getenv("LEDGER_TIMEZONE"))
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CloseMonthTimeout bounds a single month-close batch.
//
// Set via env:
// - CLOSE_MONTH_TIMEOUT_SECONDS (default 300)
func CloseMonthTimeout() time.Duration {
	secs := IntFromEnv("CLOSE_MONTH_TIMEOUT_SECONDS", 300)
	if secs <= 0 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}
