package bus

// ring is a fixed-capacity circular buffer. Writes past capacity overwrite
// the oldest entry silently.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, 0, capacity)}
}

func (r *ring[T]) add(v T) {
	if !r.full {
		r.buf = append(r.buf, v)
		if len(r.buf) == cap(r.buf) {
			r.full = true
		}
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
}

func (r *ring[T]) len() int {
	return len(r.buf)
}

// items returns the entries oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *ring[T]) clear() {
	r.buf = r.buf[:0]
	r.next = 0
	r.full = false
}
