package nearest

// Coordinates is a read-only D-dimensional vector.
type Coordinates interface {
	Dim() int
	At(d int) float32
}

// Point is a caller-owned object that receives its nearest centroid.
// The assigner keeps a reference to the point until its batch is
// dispatched and never copies it.
type Point interface {
	Coordinates
	SetCentroid(c Vector)
}

// Vector is a dense float32 vector. Centroid assignments are Vectors.
type Vector []float32

// Dim returns the number of coordinates.
func (v Vector) Dim() int { return len(v) }

// At returns coordinate d.
func (v Vector) At(d int) float32 { return v[d] }

// Sample is a Point with an identifier.
type Sample struct {
	ID       string
	Coords   Vector
	Centroid Vector
}

// NewSample creates a sample with no assignment.
func NewSample(id string, coords ...float32) *Sample {
	return &Sample{ID: id, Coords: coords}
}

func (s *Sample) Dim() int             { return len(s.Coords) }
func (s *Sample) At(d int) float32     { return s.Coords[d] }
func (s *Sample) SetCentroid(c Vector) { s.Centroid = c }

// Assigned reports whether a centroid has been written to the sample.
func (s *Sample) Assigned() bool { return s.Centroid != nil }

// Vectors copies the coordinates of each element into a Vector.
func Vectors[C Coordinates](cs []C) []Vector {
	out := make([]Vector, len(cs))
	for i, c := range cs {
		v := make(Vector, c.Dim())
		for d := range v {
			v[d] = c.At(d)
		}
		out[i] = v
	}
	return out
}

// appendFlat appends the D coordinates of c to dst.
func appendFlat(dst []float32, c Coordinates, dim int) []float32 {
	if v, ok := c.(Vector); ok {
		return append(dst, v[:dim]...)
	}
	for d := 0; d < dim; d++ {
		dst = append(dst, c.At(d))
	}
	return dst
}

// Flatten lays out vectors row-major into a single slice of len(vs)*dim.
func Flatten(vs []Vector, dim int) ([]float32, error) {
	flat := make([]float32, 0, len(vs)*dim)
	for i, v := range vs {
		if len(v) != dim {
			return nil, dimensionError(i, len(v), dim)
		}
		flat = append(flat, v...)
	}
	return flat, nil
}
