package etp

import (
	"errors"
	"sync"
	"testing"
)

func TestIDAllocator_Increasing(t *testing.T) {
	a := newIDAllocator(0, false)
	if a.peek() != 0 {
		t.Fatalf("peek = %d before first id, want 0", a.peek())
	}
	for want := int64(1); want <= 5; want++ {
		id, err := a.next()
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		if id != want {
			t.Errorf("next = %d, want %d", id, want)
		}
	}
	if a.peek() != 5 {
		t.Errorf("peek = %d, want 5", a.peek())
	}
}

func TestIDAllocator_Concurrent(t *testing.T) {
	const (
		workers = 16
		perWork = 500
	)
	a := newIDAllocator(0, false)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, workers*perWork)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWork)
			for i := 0; i < perWork; i++ {
				id, err := a.next()
				if err != nil {
					t.Errorf("next failed: %v", err)
					return
				}
				ids = append(ids, id)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("id %d handed out twice", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWork {
		t.Fatalf("got %d distinct ids, want %d", len(seen), workers*perWork)
	}
	for id := int64(1); id <= workers*perWork; id++ {
		if !seen[id] {
			t.Errorf("id %d never handed out", id)
		}
	}
}

func TestIDAllocator_Exhausted(t *testing.T) {
	a := newIDAllocator(3, false)
	for i := 0; i < 3; i++ {
		if _, err := a.next(); err != nil {
			t.Fatalf("next %d failed: %v", i, err)
		}
	}
	if _, err := a.next(); !errors.Is(err, ErrMessageIDExhausted) {
		t.Errorf("next after max = %v, want ErrMessageIDExhausted", err)
	}
	if a.peek() != 3 {
		t.Errorf("peek = %d after exhaustion, want 3", a.peek())
	}
}

func TestIDAllocator_Wrap(t *testing.T) {
	a := newIDAllocator(2, true)
	var got []int64
	for i := 0; i < 5; i++ {
		id, err := a.next()
		if err != nil {
			t.Fatalf("next failed: %v", err)
		}
		got = append(got, id)
	}
	want := []int64{1, 2, 1, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
}
