package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	p := PostgresPoolConfig{}.withDefaults()
	if p.MaxOpenConns <= 0 || p.MaxIdleConns <= 0 {
		t.Fatalf("expected positive pool sizes, got %+v", p)
	}
	if p.PingTimeout <= 0 {
		t.Fatalf("expected ping timeout default")
	}
	// Explicit values survive.
	p = PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}.withDefaults()
	if p.MaxOpenConns != 5 || p.PingTimeout != time.Second {
		t.Fatalf("explicit values overridden: %+v", p)
	}
}
