package blockpull

import cmtsync "github.com/stratis-go/fullnode/libs/sync"

// blockStats is a circular buffer over the sizes of the last delivered
// blocks. It provides O(1) average and amortised O(1) max.
type blockStats struct {
	mtx      cmtsync.Mutex
	buffer   []int
	capacity int
	size     int // current number of elements
	head     int // index where the next element will be written
	sum      int // running sum of all elements
	max      int // maximum value in the buffer
}

// newBlockStats creates a new rotating buffer with given capacity
func newBlockStats(capacity int) *blockStats {
	if capacity <= 0 {
		panic("capacity must be positive")
	}
	return &blockStats{
		buffer:   make([]int, capacity),
		capacity: capacity,
	}
}

// Add records value, evicting the oldest element when full.
func (rb *blockStats) Add(value int) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	if rb.size < rb.capacity {
		rb.buffer[rb.head] = value
		rb.sum += value
		rb.size++
		if rb.size == 1 || value > rb.max {
			rb.max = value
		}
		rb.head = (rb.head + 1) % rb.capacity
		return
	}

	oldValue := rb.buffer[rb.head]
	rb.buffer[rb.head] = value
	rb.sum = rb.sum - oldValue + value
	rb.head = (rb.head + 1) % rb.capacity

	switch {
	case value >= rb.max:
		rb.max = value
	case oldValue == rb.max:
		rb.recalculateMax()
	}
}

// recalculateMax rescans the buffer; only needed when the max was evicted.
func (rb *blockStats) recalculateMax() {
	rb.max = rb.buffer[0]
	for i := 1; i < rb.size; i++ {
		if rb.buffer[i] > rb.max {
			rb.max = rb.buffer[i]
		}
	}
}

// GetAverage returns the average of all elements in the buffer
func (rb *blockStats) GetAverage() int {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	if rb.size == 0 {
		return 0
	}
	return rb.sum / rb.size
}

// GetMax returns the maximum value in the buffer
func (rb *blockStats) GetMax() int {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return rb.max
}

// Size returns the current number of elements in the buffer
func (rb *blockStats) Size() int {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return rb.size
}
