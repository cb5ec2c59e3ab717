package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// PRFLeaf computes PRF_key(input), truncated and masked to depth bits, so
// the result can address a leaf of a depth-D tree. The construction is a
// domain-separated keyed hash (HMAC-SHA256 over a fixed "myco-prf-leaf-v1"
// tag, the key, and the big-endian input), the same shape as the
// keyed-hash PRFs in bwesterb-go-xmssmt/hash.go (prfUint64/prfAddr).
func PRFLeaf(key []byte, input uint64, depth int) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("myco-prf-leaf-v1"))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], input)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	return MaskToDepth(sum, depth)
}

// MaskToDepth truncates a hash output to ceil(depth/8) bytes and zeroes any
// bits beyond depth in the final byte, so two leaf labels that agree on
// their top `depth` bits compare equal byte-for-byte.
func MaskToDepth(h []byte, depth int) []byte {
	nbytes := (depth + 7) / 8
	if nbytes > len(h) {
		nbytes = len(h)
	}
	out := make([]byte, nbytes)
	copy(out, h[:nbytes])

	remainder := depth % 8
	if remainder != 0 && nbytes > 0 {
		mask := byte(0xFF) << uint(8-remainder)
		out[nbytes-1] &= mask
	}
	return out
}

// GetBit returns the bit at the given index in data, index 0 being the
// most significant bit of the first byte. Adapted from
// internal/transparency/merkle.go's GetBit, generalized to arbitrary
// depth rather than a fixed 256-bit SHA-256 digest.
func GetBit(data []byte, index int) int {
	if index < 0 || index >= len(data)*8 {
		return 0
	}
	byteIndex := index / 8
	bitIndex := 7 - (index % 8)
	return int((data[byteIndex] >> uint(bitIndex)) & 1)
}

// LeafIndex interprets the first `depth` bits of a leaf label as an
// unsigned integer in [0, 2^depth).
func LeafIndex(label []byte, depth int) uint64 {
	var idx uint64
	for i := 0; i < depth; i++ {
		idx = (idx << 1) | uint64(GetBit(label, i))
	}
	return idx
}
