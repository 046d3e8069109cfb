package nearest

// batch stages points on the host. items[i] always owns payload block
// [i*dim, (i+1)*dim).
type batch struct {
	dim     int
	items   []Point
	payload []float32
}

func newBatch(maxItems, dim int) batch {
	return batch{
		dim:     dim,
		items:   make([]Point, 0, maxItems),
		payload: make([]float32, 0, maxItems*dim),
	}
}

func (b *batch) len() int { return len(b.items) }

func (b *batch) capacity() int { return cap(b.items) }

func (b *batch) full() bool { return len(b.items) == cap(b.items) }

// add appends p. The caller dispatches a full batch first.
func (b *batch) add(p Point) {
	b.items = append(b.items, p)
	b.payload = appendFlat(b.payload, p, b.dim)
}

// snapshot copies the current item references.
func (b *batch) snapshot() []Point {
	return append([]Point(nil), b.items...)
}

// reset empties the batch and drops point references so the caller's
// objects are not retained between rounds.
func (b *batch) reset() {
	clear(b.items)
	b.items = b.items[:0]
	b.payload = b.payload[:0]
}
