package persistence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	var (
		locks KeyedMutex
		wg    sync.WaitGroup
		a, b  int
	)

	counters := map[string]*int{"a": &a, "b": &b}

	for i := range 200 {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock(key)
			defer unlock()

			*counters[key]++
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, a)
	assert.Equal(t, 100, b)
	assert.Zero(t, locks.size())
}
