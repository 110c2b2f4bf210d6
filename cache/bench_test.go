package cache

import (
	"fmt"
	"testing"
)

func BenchmarkStore_Get_Hit(b *testing.B) {
	s := NewStore(DefaultConfig())
	s.Set(Page, "p1", "value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(Page, "p1")
	}
}

func BenchmarkStore_Get_Miss(b *testing.B) {
	s := NewStore(DefaultConfig())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Get(Page, "missing")
	}
}

// BenchmarkStore_Set_Evicting measures writes on a full store, where every
// insert evicts the least recently used entry.
func BenchmarkStore_Set_Evicting(b *testing.B) {
	cfg := DefaultConfig()
	cfg.MaxSize = 1000
	s := NewStore(cfg)

	keys := make([]string, 4096)
	for i := range keys {
		keys[i] = fmt.Sprintf("p%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set(Page, keys[i%len(keys)], i)
	}
}

func BenchmarkStore_Parallel(b *testing.B) {
	s := NewStore(DefaultConfig())
	for i := 0; i < 100; i++ {
		s.Set(Block, fmt.Sprintf("b%d", i), i)
	}

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := fmt.Sprintf("b%d", i%100)
			if i%10 == 0 {
				s.Set(Block, id, i)
			} else {
				s.Get(Block, id)
			}
			i++
		}
	})
}

func BenchmarkQueryKey(b *testing.B) {
	input := map[string]any{
		"filter": map[string]any{"property": "Status", "select": map[string]any{"equals": "Done"}},
		"sorts":  []any{map[string]any{"timestamp": "created_time", "direction": "descending"}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = QueryKey("db1", input)
	}
}
