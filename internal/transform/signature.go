package transform

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/strand-ml/strand/internal/array"
)

// signature hashes the structural identity of an argument list: per
// argument its device, dtype, rank, and dimensions. Two calls share a
// cached trace exactly when their signatures match.
func signature(args []*array.Array) uint64 {
	h := xxhash.New()
	var word [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(word[:], v)
		h.Write(word[:])
	}
	put(uint64(len(args)))
	for _, a := range args {
		put(uint64(a.Device()))
		put(uint64(a.DType()))
		shape := a.Shape()
		put(uint64(len(shape)))
		for _, d := range shape {
			put(uint64(d))
		}
	}
	return h.Sum64()
}
