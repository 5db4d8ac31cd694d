package store

// ring is an append-only series that keeps the newest cap elements.
// cap <= 0 keeps everything.
type ring[T any] struct {
	buf   []T
	cap   int
	start int    // position of the oldest element in buf
	total uint64 // elements ever appended
}

func newRing[T any](capacity int) *ring[T] {
	r := &ring[T]{cap: capacity}
	if capacity > 0 {
		r.buf = make([]T, 0, capacity)
	}
	return r
}

func (r *ring[T]) push(v T) {
	r.total++
	if r.cap <= 0 || len(r.buf) < r.cap {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.cap
}

func (r *ring[T]) len() int { return len(r.buf) }

// at returns the i-th retained element, oldest first.
func (r *ring[T]) at(i int) T {
	if r.cap <= 0 {
		return r.buf[i]
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring[T]) last() (T, bool) {
	var zero T
	if len(r.buf) == 0 {
		return zero, false
	}
	return r.at(len(r.buf) - 1), true
}
