package etp

import (
	"math"
	"sync/atomic"
)

// idAllocator hands out message ids for one session.
// Ids start at 1 and grow by one per call.
type idAllocator struct {
	last atomic.Int64
	max  int64
	wrap bool
}

func newIDAllocator(max int64, wrap bool) *idAllocator {
	if max <= 0 {
		max = math.MaxInt64
	}
	return &idAllocator{max: max, wrap: wrap}
}

// next returns the next id. Once max has been handed out it either wraps
// back to 1 or fails with ErrMessageIDExhausted.
func (a *idAllocator) next() (int64, error) {
	for {
		cur := a.last.Load()
		id := cur + 1
		if cur >= a.max {
			if !a.wrap {
				return 0, ErrMessageIDExhausted
			}
			id = 1
		}
		if a.last.CompareAndSwap(cur, id) {
			return id, nil
		}
	}
}

// peek returns the last id handed out, 0 if none.
func (a *idAllocator) peek() int64 {
	return a.last.Load()
}
