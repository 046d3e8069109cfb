package nearest

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies a flattened centroid set. Two sets with the same
// dimensionality and bit-identical scalars share a fingerprint.
func Fingerprint(flat []float32, dim int) string {
	h, _ := blake2b.New256(nil)

	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], uint32(dim))
	h.Write(word[:])
	for _, f := range flat {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(f))
		h.Write(word[:])
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
