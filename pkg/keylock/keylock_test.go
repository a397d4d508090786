package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStriped_SerializesSameKey(t *testing.T) {
	locks := New(16)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.WithLock("student-1", func() {
				counter++
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestStriped_RoundsUpToPowerOfTwo(t *testing.T) {
	locks := New(100)
	assert.Len(t, locks.stripes, 128)

	locks = New(0)
	assert.Len(t, locks.stripes, DefaultStripes)
}

func TestStriped_LockUnlock(t *testing.T) {
	locks := New(4)
	locks.Lock("a")
	locks.Unlock("a")
	// Re-acquiring after unlock must not deadlock.
	locks.Lock("a")
	locks.Unlock("a")
}
