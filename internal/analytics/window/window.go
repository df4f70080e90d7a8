package window

import (
	"github.com/assetwatch/assetwatch/internal/models"
)

// Buffer holds the most recent readings for one monitored entity in a
// fixed-capacity ring. Oldest readings are evicted first once the ring is
// full. Readiness latches the first time cumulative adds reach capacity and
// is cleared only by Clear.
//
// The buffer assumes a single writer per entity; callers across distinct
// entities may run concurrently because buffers share no state.
type Buffer struct {
	data     []models.Reading
	head     int
	size     int
	capacity int
	ready    bool
}

// New creates a buffer holding up to capacity readings.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		data:     make([]models.Reading, capacity),
		capacity: capacity,
	}
}

// Add appends a reading at the tail, evicting the head when full. O(1).
func (b *Buffer) Add(r models.Reading) {
	idx := (b.head + b.size) % b.capacity
	b.data[idx] = r
	if b.size < b.capacity {
		b.size++
	} else {
		b.head = (b.head + 1) % b.capacity
	}
	if b.size == b.capacity {
		b.ready = true
	}
}

// Snapshot returns a defensive copy of the current contents in arrival
// order. Callers never observe a window that later mutates.
func (b *Buffer) Snapshot() []models.Reading {
	out := make([]models.Reading, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%b.capacity]
	}
	return out
}

// Ready reports whether the buffer has ever been filled to capacity.
func (b *Buffer) Ready() bool { return b.ready }

// Len reports the current number of buffered readings.
func (b *Buffer) Len() int { return b.size }

// Cap reports the configured window size.
func (b *Buffer) Cap() int { return b.capacity }

// Clear resets the buffer to empty and drops the ready latch.
func (b *Buffer) Clear() {
	b.head = 0
	b.size = 0
	b.ready = false
}
