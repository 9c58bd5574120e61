package redis

import (
	"context"
	"testing"

	"trading-session-guard/internal/infrastructure/config"
)

func TestEscapeGlob(t *testing.T) {
	cases := map[string]string{
		"guard:analytics:1:": "guard:analytics:1:",
		"a*b?c[d]":           `a\*b\?c\[d\]`,
		`back\slash`:         `back\\slash`,
	}
	for in, want := range cases {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServiceNotRunning(t *testing.T) {
	rs := NewRedisService(config.RedisConfig{Host: "localhost", Port: 6379})

	if rs.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", rs.State())
	}
	if rs.GetCache() != nil {
		t.Fatal("cache should be nil before Start")
	}
	if err := rs.HealthCheck(context.Background()); err == nil {
		t.Fatal("health check should fail before Start")
	}
	if err := rs.Stop(); err != nil {
		t.Fatalf("stop on stopped service: %v", err)
	}
}
