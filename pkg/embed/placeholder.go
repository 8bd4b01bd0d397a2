package embed

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// PlaceholderVector derives a deterministic unit vector from
// (model, text). Used only on the ingestion write path when the
// embedding backend is down: the chunk stays searchable in degraded
// mode and can be backfilled later, and re-running the same outage
// scenario produces the same vector.
func PlaceholderVector(model, text string, dims int) []float32 {
	if dims <= 0 {
		dims = 768
	}

	seed := sha256.Sum256([]byte("placeholder\x00" + model + "\x00" + text))
	vec := make([]float32, dims)

	block := seed
	counter := uint64(0)
	byteIdx := 0
	for i := range vec {
		if byteIdx+4 > len(block) {
			counter++
			var next [8]byte
			binary.LittleEndian.PutUint64(next[:], counter)
			block = sha256.Sum256(append(seed[:], next[:]...))
			byteIdx = 0
		}
		bits := binary.LittleEndian.Uint32(block[byteIdx : byteIdx+4])
		byteIdx += 4
		// Map to [-1, 1).
		vec[i] = float32(int32(bits)) / float32(math.MaxInt32)
	}

	// L2-normalize so cosine scores against real vectors stay bounded.
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
