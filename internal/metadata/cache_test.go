package metadata

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewKVCache(t *testing.T) {
	ttl := 10 * time.Second
	cache := NewKVCache(ttl)
	defer cache.Stop()

	if cache.ttl != ttl {
		t.Errorf("Expected TTL %v, got %v", ttl, cache.ttl)
	}
	if cache.entries == nil {
		t.Error("Expected entries map to be initialized")
	}
}

func TestKVCache_SetAndGet(t *testing.T) {
	cache := NewKVCache(time.Second)
	defer cache.Stop()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"simple_key_value", "test-key", "test-value"},
		{"storage_record", "/unistor/storage/vol-1", `{"id":"vol-1"}`},
		{"empty_value", "empty-key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache.Set(tt.key, tt.value)

			value, found, cached := cache.Get(tt.key)
			if !cached || !found {
				t.Fatalf("Expected key to be cached as present, cached=%v found=%v", cached, found)
			}
			if value != tt.value {
				t.Errorf("Expected value %q, got %q", tt.value, value)
			}
		})
	}
}

func TestKVCache_Missing(t *testing.T) {
	cache := NewKVCache(time.Second)
	defer cache.Stop()

	if _, _, cached := cache.Get("absent"); cached {
		t.Error("Expected unknown key to be uncached")
	}

	cache.SetMissing("absent")
	_, found, cached := cache.Get("absent")
	if !cached || found {
		t.Errorf("Expected negative entry, cached=%v found=%v", cached, found)
	}
}

func TestKVCache_Expiry(t *testing.T) {
	cache := NewKVCache(time.Minute)
	defer cache.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("k", "v")
	now = now.Add(2 * time.Minute)

	if _, _, cached := cache.Get("k"); cached {
		t.Error("Expected expired entry to be ignored")
	}
	if s := cache.Stats(); s.Expired != 1 {
		t.Errorf("Expected 1 expired entry, got %d", s.Expired)
	}

	cache.evictExpired()
	if s := cache.Stats(); s.Entries != 0 {
		t.Errorf("Expected sweep to evict, %d entries left", s.Entries)
	}
}

func TestKVCache_DeletePrefix(t *testing.T) {
	cache := NewKVCache(time.Minute)
	defer cache.Stop()

	cache.Set("/unistor/nodes/node-1", "a")
	cache.Set("/unistor/nodes/node-2", "b")
	cache.Set("/unistor/storage/vol-1", "c")

	cache.DeletePrefix("/unistor/nodes")

	if _, _, ok := cache.Get("/unistor/nodes/node-1"); ok {
		t.Error("Expected node-1 to be deleted")
	}
	if _, _, ok := cache.Get("/unistor/nodes/node-2"); ok {
		t.Error("Expected node-2 to be deleted")
	}
	if v, _, ok := cache.Get("/unistor/storage/vol-1"); !ok || v != "c" {
		t.Error("Expected storage record to survive")
	}

	cache.Delete("/unistor/storage/vol-1")
	cache.SetMissing("x")
	if s := cache.Stats(); s.Entries != 1 || s.Misses != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}

	cache.Clear()
	if s := cache.Stats(); s.Entries != 0 {
		t.Errorf("Expected empty cache after Clear, got %d", s.Entries)
	}
}

func TestKVCache_StopTwice(t *testing.T) {
	cache := NewKVCache(time.Minute)
	cache.Stop()
	cache.Stop()
}

func TestKVCache_ConcurrentAccess(t *testing.T) {
	cache := NewKVCache(time.Minute)
	defer cache.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				cache.Set(key, "v")
				cache.Get(key)
				if j%10 == 0 {
					cache.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if s := cache.Stats(); s.Entries != 900 {
		t.Errorf("Expected 900 entries, got %d", s.Entries)
	}
}
