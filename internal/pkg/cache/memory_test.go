package cache

import (
	"context"
	"testing"
	"time"

	"github.com/hanziloop/core/internal/models"
)

func record(text string) *models.PhraseModel {
	return &models.PhraseModel{Text: text}
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", record("你好"), time.Minute)
	rec, ok := m.Get(ctx, "k")
	if !ok || rec.Text != "你好" {
		t.Fatalf("get = %+v, %v", rec, ok)
	}

	if _, ok := m.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit on missing key")
	}
}

func TestMemory_ExpiryIsLazy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", record("你好"), time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("expired entry must miss")
	}
	// The lazy path also removed it.
	m.mu.RLock()
	_, still := m.entries["k"]
	m.mu.RUnlock()
	if still {
		t.Fatal("expired entry not evicted on read")
	}
}

func TestMemory_SetRefreshesTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", record("旧"), time.Nanosecond)
	m.Set(ctx, "k", record("新"), time.Minute)

	rec, ok := m.Get(ctx, "k")
	if !ok || rec.Text != "新" {
		t.Fatalf("refreshed entry lost: %+v, %v", rec, ok)
	}
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", record("你好"), time.Minute)
	m.Delete(ctx, "k")
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("deleted entry must miss")
	}
}

func TestMemory_CleanupRemovesOnlyExpired(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "dead", record("一"), time.Nanosecond)
	m.Set(ctx, "alive", record("二"), time.Minute)
	time.Sleep(5 * time.Millisecond)

	if removed := m.Cleanup(ctx); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := m.Get(ctx, "alive"); !ok {
		t.Fatal("live entry must survive cleanup")
	}
}

func TestMemory_ZeroTTLUsesDefault(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", record("你好"), 0)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("entry with defaulted TTL must be readable")
	}
}
