package bucket

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// Bucket is the fixed-capacity container stored at one tree node: on the
// wire it is exactly {data, signature} (spec §6); here Blocks stands in
// for the framed `data` since wire encoding is out of scope, and Signature
// is the MAC over that framing.
type Bucket struct {
	Blocks    []Block
	Signature []byte
}

// Pad appends dummy blocks until the bucket holds exactly z entries
// (spec §3 invariant 4). newDummy is RandomDummyMessageBlock or
// RandomDummyNotificationBlock depending on which tree the bucket belongs
// to.
func Pad(blocks []Block, z int, newDummy func() (Block, error)) ([]Block, error) {
	if len(blocks) > z {
		return nil, ErrOverflow
	}
	out := make([]Block, len(blocks), z)
	copy(out, blocks)
	for len(out) < z {
		d, err := newDummy()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ErrOverflow indicates more real blocks were assigned to a bucket than it
// has capacity for — a Capacity error at the caller.
var ErrOverflow = overflowError{}

type overflowError struct{}

func (overflowError) Error() string { return "bucket: more blocks than capacity" }

// frame deterministically serializes a bucket's blocks for MAC input. This
// stands in for the protobuf-style wire framing the spec assumes; any
// encoding is fine as long as it is injective over (Kind, Ciphertext,
// SenderSlot, RencKey) so a tampered block changes the MAC.
func frame(blocks []Block) []byte {
	var buf bytes.Buffer
	var lenBuf [8]byte
	writeUint64 := func(v uint64) {
		binary.BigEndian.PutUint64(lenBuf[:], v)
		buf.Write(lenBuf[:])
	}
	writeBytes := func(b []byte) {
		writeUint64(uint64(len(b)))
		buf.Write(b)
	}

	writeUint64(uint64(len(blocks)))
	for _, b := range blocks {
		buf.WriteByte(byte(b.Kind))
		writeBytes(b.Ciphertext.Data)
		writeBytes(b.Ciphertext.Nonce)
		writeUint64(b.SenderSlot)
		writeBytes(b.RencKey)
	}
	return buf.Bytes()
}

// Sign computes and stores the bucket's MAC under the shared Server1<->
// Server2 pathset-authentication key (see DESIGN.md: a per-writer k_auth
// would require Server2 to learn the writer's identity, which the
// protocol forbids).
func (b *Bucket) Sign(authKey []byte) {
	mac := hmac.New(sha256.New, authKey)
	mac.Write(frame(b.Blocks))
	b.Signature = mac.Sum(nil)
}

// Verify reports whether the bucket's signature matches its contents under
// authKey.
func (b *Bucket) Verify(authKey []byte) bool {
	mac := hmac.New(sha256.New, authKey)
	mac.Write(frame(b.Blocks))
	expected := mac.Sum(nil)
	return hmac.Equal(expected, b.Signature)
}

// Clone returns a deep copy of the bucket, used when handing buckets back
// to readers so a concurrent writer cannot mutate a reply already in
// flight.
func (b Bucket) Clone() Bucket {
	blocks := make([]Block, len(b.Blocks))
	for i, blk := range b.Blocks {
		nb := blk
		nb.Ciphertext.Data = append([]byte(nil), blk.Ciphertext.Data...)
		nb.Ciphertext.Nonce = append([]byte(nil), blk.Ciphertext.Nonce...)
		nb.RencKey = append([]byte(nil), blk.RencKey...)
		blocks[i] = nb
	}
	return Bucket{
		Blocks:    blocks,
		Signature: append([]byte(nil), b.Signature...),
	}
}
