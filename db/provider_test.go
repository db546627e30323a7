package db

import (
	"fmt"
	"path/filepath"
	"testing"
)

func openProviders(t *testing.T) map[string]IterableProvider {
	t.Helper()
	bolt, err := NewBoltProvider(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltProvider: %v", err)
	}
	level, err := NewLevelDBProvider(filepath.Join(t.TempDir(), "leveldb"))
	if err != nil {
		t.Fatalf("NewLevelDBProvider: %v", err)
	}
	return map[string]IterableProvider{
		"memory":  NewMemoryProvider(),
		"bolt":    bolt,
		"leveldb": level,
	}
}

func TestProviderBasicOps(t *testing.T) {
	for name, provider := range openProviders(t) {
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			if err := provider.Put([]byte("k1"), []byte("v1")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			value, err := provider.Get([]byte("k1"))
			if err != nil || string(value) != "v1" {
				t.Fatalf("Get: value=%q err=%v", value, err)
			}
			has, err := provider.Has([]byte("k1"))
			if err != nil || !has {
				t.Errorf("Has: has=%v err=%v", has, err)
			}

			if err := provider.Delete([]byte("k1")); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			value, err = provider.Get([]byte("k1"))
			if err != nil || value != nil {
				t.Errorf("deleted key still resolves: value=%q err=%v", value, err)
			}
		})
	}
}

func TestProviderBatchAtomicity(t *testing.T) {
	for name, provider := range openProviders(t) {
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			batch := provider.Batch()
			batch.Put([]byte("a"), []byte("1"))
			batch.Put([]byte("b"), []byte("2"))

			// Nothing lands before the batch commits.
			if has, _ := provider.Has([]byte("a")); has {
				t.Error("batch write visible before commit")
			}
			if err := batch.Write(); err != nil {
				t.Fatalf("Write: %v", err)
			}
			batch.Close()

			for _, key := range []string{"a", "b"} {
				if has, _ := provider.Has([]byte(key)); !has {
					t.Errorf("key %s missing after batch commit", key)
				}
			}
		})
	}
}

func TestProviderPrefixIteration(t *testing.T) {
	for name, provider := range openProviders(t) {
		t.Run(name, func(t *testing.T) {
			defer provider.Close()

			for i := 0; i < 5; i++ {
				key := fmt.Sprintf("chain:%d", i)
				if err := provider.Put([]byte(key), []byte{byte(i)}); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			if err := provider.Put([]byte("other:0"), []byte("x")); err != nil {
				t.Fatalf("Put: %v", err)
			}

			var keys []string
			err := provider.IteratePrefix([]byte("chain:"), func(key, value []byte) bool {
				keys = append(keys, string(key))
				return true
			})
			if err != nil {
				t.Fatalf("IteratePrefix: %v", err)
			}
			if len(keys) != 5 {
				t.Fatalf("expected 5 keys, got %v", keys)
			}
			// Ordered iteration is part of the provider contract.
			for i := 1; i < len(keys); i++ {
				if keys[i-1] >= keys[i] {
					t.Errorf("keys not sorted: %v", keys)
				}
			}

			// Early stop.
			count := 0
			_ = provider.IteratePrefix([]byte("chain:"), func(key, value []byte) bool {
				count++
				return false
			})
			if count != 1 {
				t.Errorf("iteration continued after false: %d", count)
			}
		})
	}
}
