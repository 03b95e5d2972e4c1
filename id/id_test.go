package id_test

import (
	"sync"
	"testing"

	"github.com/hsgames/evnet/id"
)

func TestSerial(t *testing.T) {
	var s id.Serial
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := s.Next()
				mu.Lock()
				if seen[n] {
					t.Errorf("duplicate id %d", n)
				}
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if s.Last() != 800 || seen[0] {
		t.Fatalf("last = %d", s.Last())
	}
}
