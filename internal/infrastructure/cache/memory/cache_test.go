package memory

import (
	"context"
	"testing"
	"time"
)

type report struct {
	Total float64 `json:"total"`
}

func TestCacheTTLAndPrefixInvalidation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache().WithClock(func() time.Time { return now })

	c.Set(ctx, "analytics:1:daily:0:1", report{Total: 5}, 5*time.Minute)
	c.Set(ctx, "analytics:12:daily:0:1", report{Total: 7}, 5*time.Minute)

	var got report
	found, err := c.Get(ctx, "analytics:1:daily:0:1", &got)
	if err != nil || !found || got.Total != 5 {
		t.Fatalf("found=%v err=%v got=%+v", found, err, got)
	}

	n, _ := c.DeletePrefix(ctx, "analytics:1:")
	if n != 1 {
		t.Fatalf("deleted = %d, want 1 (user 12 must survive)", n)
	}
	if found, _ := c.Get(ctx, "analytics:12:daily:0:1", &got); !found {
		t.Fatal("user 12 entry was removed")
	}

	now = now.Add(5 * time.Minute)
	if found, _ := c.Get(ctx, "analytics:12:daily:0:1", &got); found {
		t.Fatal("entry should expire after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d, want 0", c.Len())
	}
}
