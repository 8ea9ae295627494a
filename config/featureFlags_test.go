package config

import (
	"testing"
	"time"
)

func TestLedgerLocation(t *testing.T) {
	t.Setenv("LEDGER_TIMEZONE", "")
	if LedgerLocation() != time.UTC {
		t.Fatalf("default location should be UTC")
	}
	t.Setenv("LEDGER_TIMEZONE", "Not/AZone")
	if LedgerLocation() != time.UTC {
		t.Fatalf("unknown zone should fall back to UTC")
	}
	t.Setenv("LEDGER_TIMEZONE", "UTC")
	if LedgerLocation().String() != "UTC" {
		t.Fatalf("location = %s", LedgerLocation())
	}
}

func TestCloseMonthTimeout(t *testing.T) {
	t.Setenv("CLOSE_MONTH_TIMEOUT_SECONDS", "")
	if got := CloseMonthTimeout(); got != 300*time.Second {
		t.Fatalf("default = %s", got)
	}
	t.Setenv("CLOSE_MONTH_TIMEOUT_SECONDS", "45")
	if got := CloseMonthTimeout(); got != 45*time.Second {
		t.Fatalf("override = %s", got)
	}
	t.Setenv("CLOSE_MONTH_TIMEOUT_SECONDS", "-5")
	if got := CloseMonthTimeout(); got != 300*time.Second {
		t.Fatalf("negative should fall back, got %s", got)
	}
}

func TestBoolFlags(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "y"} {
		t.Setenv("LEDGER_EVENTS_ENABLED", v)
		if !LedgerEventsEnabled() {
			t.Fatalf("LEDGER_EVENTS_ENABLED=%q should enable", v)
		}
	}
	t.Setenv("LEDGER_EVENTS_ENABLED", "off")
	if LedgerEventsEnabled() {
		t.Fatalf("off should disable")
	}
	t.Setenv("SKIP_MIGRATIONS", "")
	if SkipMigrations() {
		t.Fatalf("unset SKIP_MIGRATIONS should be false")
	}
}

func TestIntFromEnv(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "abc")
	if got := IntFromEnv("DB_MAX_OPEN_CONNS", 50); got != 50 {
		t.Fatalf("malformed value should use default, got %d", got)
	}
	t.Setenv("DB_MAX_OPEN_CONNS", " 12 ")
	if got := IntFromEnv("DB_MAX_OPEN_CONNS", 50); got != 12 {
		t.Fatalf("got %d", got)
	}
}

func TestRedisOptionsFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "")
	t.Setenv("REDIS_PASSWORD", "")
	t.Setenv("REDIS_DB", "")
	t.Setenv("REDIS_POOL_SIZE", "")
	opts := RedisOptionsFromEnv()
	if opts.Addr != "localhost:6379" || opts.DB != 0 || opts.PoolSize != 20 {
		t.Fatalf("defaults = %s db=%d pool=%d", opts.Addr, opts.DB, opts.PoolSize)
	}

	t.Setenv("REDIS_ADDRESS", " redis:6380 ")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_POOL_SIZE", "-1")
	opts = RedisOptionsFromEnv()
	if opts.Addr != "redis:6380" || opts.Password != "secret" || opts.DB != 2 || opts.PoolSize != 20 {
		t.Fatalf("env options = %s db=%d pool=%d", opts.Addr, opts.DB, opts.PoolSize)
	}
}
