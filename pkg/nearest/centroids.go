package nearest

import (
	"fmt"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// centroidStage owns the read-only device copy of the current centroid set.
type centroidStage struct {
	buf     compute.Buffer
	count   int
	version string
}

func (s *centroidStage) ready() bool {
	return s.buf != nil && s.count > 0
}

// prepare uploads centroids and waits for the queue before swapping the new
// buffer in. On failure the previous buffer, count and version stay in place.
func (s *centroidStage) prepare(dev compute.Device, dim int, centroids []Vector) error {
	if len(centroids) == 0 {
		return ErrEmptyCentroids
	}
	flat, err := Flatten(centroids, dim)
	if err != nil {
		return err
	}

	buf, err := dev.NewBuffer(compute.ReadOnly, flat)
	if err != nil {
		return fmt.Errorf("upload centroids: %w", err)
	}
	if err := dev.Queue().Finish(); err != nil {
		buf.Release()
		return fmt.Errorf("upload centroids: %w", err)
	}

	old := s.buf
	s.buf = buf
	s.count = len(centroids)
	s.version = Fingerprint(flat, dim)
	if old != nil {
		old.Release()
	}
	return nil
}

func (s *centroidStage) release() {
	if s.buf != nil {
		s.buf.Release()
		s.buf = nil
	}
	s.count = 0
	s.version = ""
}
