package bitmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndTest(t *testing.T) {
	b := New(10)
	assert.False(t, b.Test(1))
	b.Set(1)
	assert.True(t, b.Test(1))
	assert.False(t, b.Test(2))
}

func TestAllSet(t *testing.T) {
	b := New(65) // spans two words
	assert.False(t, b.AllSet())
	for i := uint32(1); i <= 65; i++ {
		b.Set(i)
	}
	assert.True(t, b.AllSet())
}

func TestAllSetEmptyBitmap(t *testing.T) {
	b := New(0)
	assert.True(t, b.AllSet())
}

func TestSetIgnoresOutOfRange(t *testing.T) {
	b := New(5)
	b.Set(0)
	b.Set(6)
	assert.False(t, b.Test(0))
	assert.False(t, b.Test(6))
}

func TestConcurrentSetIsRaceFree(t *testing.T) {
	b := New(1000)
	var wg sync.WaitGroup
	for i := uint32(1); i <= 1000; i++ {
		wg.Add(1)
		go func(idx uint32) {
			defer wg.Done()
			b.Set(idx)
		}(i)
	}
	wg.Wait()
	assert.True(t, b.AllSet())
}
