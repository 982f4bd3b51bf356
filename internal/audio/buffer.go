package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer of PCM samples. Capture callbacks
// write into it; the evaluation loop drains it on each tick.
type RingBuffer struct {
	buffer []int16
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a new ring buffer holding up to size-1 samples
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]int16, size),
		size:   size,
	}
}

// Write writes samples to the ring buffer.
// Returns the number of samples written (less than len(samples) if full).
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, s := range samples {
		if (rb.write+1)%rb.size == rb.read {
			break // Buffer full
		}
		rb.buffer[rb.write] = s
		rb.write = (rb.write + 1) % rb.size
		written++
	}
	return written
}

// Read reads up to len(out) samples; returns the number read
func (rb *RingBuffer) Read(out []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for i := range out {
		if rb.read == rb.write {
			break // Buffer empty
		}
		out[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}
	return read
}

// Drain reads and returns everything currently buffered
func (rb *RingBuffer) Drain() []int16 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var n int
	if rb.write >= rb.read {
		n = rb.write - rb.read
	} else {
		n = rb.size - rb.read + rb.write
	}
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
	}
	return out
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Clear resets the buffer to empty
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if the buffer holds no samples
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}
