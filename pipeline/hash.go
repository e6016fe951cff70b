package pipeline

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
	"sort"
)

// Key identifies a pipeline description in the cache: an FNV-1a content hash
// over every compile-relevant field of the descriptor.
type Key uint64

// HashGraphicsDescriptor computes the cache key for a descriptor.
//
// The hash covers:
//   - per-stage module content hashes, entry points, and specialization
//     constants (sorted by ID for a canonical order)
//   - topology, front face, and cull mode
//   - viewport and scissor, which are baked into the built object
//
// The label is excluded: it never affects behavior.
func HashGraphicsDescriptor(desc *GraphicsDescriptor) Key {
	h := fnv.New64a()

	hashStage(h, &desc.VertexStage)
	hashStage(h, &desc.FragmentStage)

	hashWriteUint32(h, uint32(desc.Topology))
	hashWriteUint32(h, uint32(desc.FrontFace))
	hashWriteUint32(h, uint32(desc.CullMode))

	hashWriteFloat32(h, desc.Viewport.X)
	hashWriteFloat32(h, desc.Viewport.Y)
	hashWriteFloat32(h, desc.Viewport.Width)
	hashWriteFloat32(h, desc.Viewport.Height)
	hashWriteFloat32(h, desc.Viewport.MinDepth)
	hashWriteFloat32(h, desc.Viewport.MaxDepth)

	hashWriteUint32(h, uint32(desc.Scissor.X))
	hashWriteUint32(h, uint32(desc.Scissor.Y))
	hashWriteUint32(h, uint32(desc.Scissor.Width))
	hashWriteUint32(h, uint32(desc.Scissor.Height))

	return Key(h.Sum64())
}

// hashStage writes one stage description to the hash.
func hashStage(h hash.Hash64, sd *StageDescriptor) {
	if sd.Module != nil {
		hashWriteUint64(h, sd.Module.Hash())
	} else {
		hashWriteUint64(h, 0)
	}
	hashWriteString(h, sd.EntryPoint)

	ids := make([]uint32, 0, len(sd.Specialization))
	for id := range sd.Specialization {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hashWriteUint32(h, uint32(len(ids)))
	for _, id := range ids {
		hashWriteUint32(h, id)
		hashWriteUint32(h, sd.Specialization[id])
	}
}

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteUint64 writes a uint64 to the hash.
func hashWriteUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteFloat32 writes a float32 to the hash by bit pattern.
func hashWriteFloat32(h hash.Hash64, v float32) {
	hashWriteUint32(h, math.Float32bits(v))
}

// hashWriteString writes a length-prefixed string to the hash.
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}
