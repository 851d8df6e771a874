package tracking

// ring is a fixed-capacity buffer with oldest-first eviction. Not safe for
// concurrent use; the owning service serializes access.
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	// full: overwrite the oldest slot
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// items returns the buffered values oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// drain returns and removes all buffered values, oldest first.
func (r *ring[T]) drain() []T {
	out := r.items()
	r.start = 0
	r.size = 0
	return out
}

func (r *ring[T]) len() int {
	return r.size
}

func (r *ring[T]) clear() {
	r.start = 0
	r.size = 0
}
