// ABOUTME: Microphone interface and the ring buffer shared by device sources
// ABOUTME: A microphone yields whatever PCM has accumulated since the last read
package capture

import (
	"sync"

	"github.com/Resonate-Protocol/walkie/pkg/audio"
)

// Microphone is a PCM input source
type Microphone interface {
	// Open acquires the device for the given format
	Open(format audio.Format) error

	// Read copies up to len(dst) captured samples and returns the count
	Read(dst []int32) int

	// Flush drops samples captured while nobody was reading
	Flush()

	// Close releases the device
	Close() error
}

// RingBuffer is a fixed-size sample FIFO that overwrites the oldest
// samples when full
type RingBuffer struct {
	mu       sync.Mutex
	buffer   []int32
	readPos  int
	writePos int
	count    int
}

// NewRingBuffer creates a ring buffer with given capacity (in samples)
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{buffer: make([]int32, capacity)}
}

// Write adds samples, dropping the oldest on overflow
func (rb *RingBuffer) Write(samples []int32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	for _, s := range samples {
		rb.buffer[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % size
		if rb.count == size {
			rb.readPos = (rb.readPos + 1) % size
		} else {
			rb.count++
		}
	}
}

// Read retrieves up to len(samples) samples
func (rb *RingBuffer) Read(samples []int32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(samples), rb.count)
	for i := 0; i < n; i++ {
		samples[i] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % len(rb.buffer)
	}
	rb.count -= n
	return n
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Reset empties the buffer
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos, rb.writePos, rb.count = 0, 0, 0
}
