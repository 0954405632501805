package llm

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
)

// FallbackModel marks vectors that did not come from a real model.
const FallbackModel = "dummy"

// FallbackVector derives dim values in [0, 1) from the text alone, so the same
// text always yields the same vector.
func FallbackVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	seed := binary.LittleEndian.Uint64(sum[:8])
	r := rand.New(rand.NewPCG(seed, seed))

	out := make([]float32, dim)
	for i := range out {
		out[i] = r.Float32()
	}
	return out
}
