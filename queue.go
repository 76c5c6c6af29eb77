package kmsdisplay

// BoundedQueue is a fixed-capacity FIFO. It does no locking of its own.
type BoundedQueue[T any] struct {
	buf   []T
	head  int
	count int
}

// NewBoundedQueue returns an empty queue holding at most capacity elements.
// It panics if capacity is not positive.
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity <= 0 {
		panic("kmsdisplay: queue capacity must be positive")
	}
	return &BoundedQueue[T]{buf: make([]T, capacity)}
}

// Len returns the number of queued elements.
func (q *BoundedQueue[T]) Len() int {
	return q.count
}

// Cap returns the queue capacity.
func (q *BoundedQueue[T]) Cap() int {
	return len(q.buf)
}

// Push appends v. It fails with ErrQueueFull when the queue is at capacity.
func (q *BoundedQueue[T]) Push(v T) error {
	if q.count == len(q.buf) {
		return ErrQueueFull
	}
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
	return nil
}

// Pop removes and returns the oldest element. It fails with ErrQueueEmpty when
// there is nothing queued.
func (q *BoundedQueue[T]) Pop() (T, error) {
	var zero T
	if q.count == 0 {
		return zero, ErrQueueEmpty
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, nil
}
