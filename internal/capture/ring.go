package capture

import (
	"sync"
)

// sampleBytes is the width of one s16le sample; writes never split one.
const sampleBytes = 2

// Ring is a thread-safe byte ring decoupling the device data callback from
// the block pump. The callback must never block, so writes drop on overflow.
type Ring struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.Mutex
}

// NewRing creates a ring with the specified capacity in bytes.
func NewRing(size int) *Ring {
	return &Ring{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data to the ring. Returns the number of bytes written, which
// is less than len(data) when the ring is full. The count is always a whole
// number of samples: committing a partial sample on overflow would shift
// every later read off the 16-bit boundary.
func (r *Ring) Write(data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(data)
	if space := r.size - r.availableLocked() - 1; n > space {
		n = space
	}
	n -= n % sampleBytes
	for i := 0; i < n; i++ {
		r.buffer[r.write] = data[i]
		r.write = (r.write + 1) % r.size
	}
	return n
}

// Read fills data from the ring. Returns the number of bytes read.
func (r *Ring) Read(data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	read := 0
	for i := 0; i < len(data); i++ {
		if r.read == r.write {
			break // empty
		}
		data[i] = r.buffer[r.read]
		r.read = (r.read + 1) % r.size
		read++
	}
	return read
}

// Available returns the number of bytes ready to read.
func (r *Ring) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableLocked()
}

func (r *Ring) availableLocked() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}

// Space returns the number of bytes that can still be written.
func (r *Ring) Space() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size - r.availableLocked() - 1 // -1 avoids full/empty ambiguity
}

// Reset discards all buffered bytes.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = 0
	r.write = 0
}
