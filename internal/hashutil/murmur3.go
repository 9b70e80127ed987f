// Package hashutil provides the single hash primitive used by both the
// response cache and the connection table (spec §4.A): a 32-bit
// MurmurHash3 x86 variant, seeded with 42 to match the reference proxy.
//
// No third-party MurmurHash3 implementation appears anywhere in the
// retrieval pack's go.mod files, and the algorithm is small, self-contained,
// and load-bearing for on-disk-free hash table placement — there is no
// ecosystem gap to fill here, so it is implemented directly against the
// published MurmurHash3 x86_32 reference algorithm.
package hashutil

const (
	c1 uint32 = 0xcc9e2d51
	c2 uint32 = 0x1b873593
)

// Seed is the fixed seed used throughout hintproxy so cache and table
// placement is reproducible across runs.
const Seed uint32 = 42

// Sum32 computes MurmurHash3_x86_32(data, Seed), matching the reference
// proxy's MurmurHash3_x86_32(key, len, 42, &out).
func Sum32(data []byte) uint32 {
	h := Seed
	n := len(data)
	nblocks := n / 4

	for i := 0; i < nblocks; i++ {
		k := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		k *= c1
		k = rotl32(k, 15)
		k *= c2

		h ^= k
		h = rotl32(h, 13)
		h = h*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = rotl32(k1, 15)
		k1 *= c2
		h ^= k1
	}

	h ^= uint32(n)
	h = fmix32(h)
	return h
}

// SumHandle hashes the little-endian 4-byte representation of a socket
// handle, as the connection table does (spec §4.A).
func SumHandle(handle int) uint32 {
	var b [4]byte
	v := uint32(handle)
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return Sum32(b[:])
}

func rotl32(x uint32, r uint8) uint32 {
	return (x << r) | (x >> (32 - r))
}

func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
