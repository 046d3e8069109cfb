package nearest

import (
	"fmt"

	"github.com/orneryd/nornicdb-nearest/pkg/compute"
)

// bufferPair holds the per-assigner input and output device buffers.
// Both hold scalars elements and are reused by every dispatch until the
// batch capacity changes.
type bufferPair struct {
	input   compute.Buffer
	output  compute.Buffer
	scalars int
}

func newBufferPair(dev compute.Device, scalars int) (bufferPair, error) {
	input, err := dev.NewEmptyBuffer(compute.ReadOnly, scalars)
	if err != nil {
		return bufferPair{}, fmt.Errorf("allocate point buffer: %w", err)
	}
	output, err := dev.NewEmptyBuffer(compute.ReadWrite, scalars)
	if err != nil {
		input.Release()
		return bufferPair{}, fmt.Errorf("allocate result buffer: %w", err)
	}
	return bufferPair{input: input, output: output, scalars: scalars}, nil
}

func (p *bufferPair) release() {
	if p.input != nil {
		p.input.Release()
		p.input = nil
	}
	if p.output != nil {
		p.output.Release()
		p.output = nil
	}
	p.scalars = 0
}
