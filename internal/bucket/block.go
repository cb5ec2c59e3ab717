// Package bucket defines the Block and Bucket types that make up Myco's
// oblivious tree: the fixed-capacity containers stored at every tree node,
// and the message/notification records placed inside them (spec §3).
package bucket

import (
	"crypto/rand"
	"io"

	"github.com/myco-org/myco/internal/cryptoutil"
)

// Kind distinguishes a message record from a notification record. It is
// bookkeeping local to this implementation for tests and placement logic
// only — it is never part of the wire encoding a real deployment would use
// (the wire contract is strictly {data, signature}; an observer must not
// be able to recover Kind from the bytes on the wire).
type Kind uint8

const (
	// KindMessage blocks carry ct, f, c_s, k_renc_t.
	KindMessage Kind = iota
	// KindNotification blocks carry ct_ntf, f_ntf.
	KindNotification
)

// Block is one record inside a bucket. Message and notification blocks
// share this shape; unused fields are zero.
type Block struct {
	Kind Kind

	// Ciphertext is ct for a message block, ct_ntf for a notification
	// block.
	Ciphertext cryptoutil.Ciphertext

	// SenderSlot is c_s: the sender's public client index, bound into
	// the notification's associated data so a forged notification
	// cannot be replayed under a different sender's name.
	SenderSlot uint64

	// RencKey is k_renc_t, present only on message blocks: the
	// recipient needs it to decrypt Ciphertext without having derived
	// it independently (it was already generated per-epoch by the
	// sender from the recipient's published long-term key).
	RencKey []byte

	// Dummy marks a synthesized cover block. Like Kind, this is local
	// bookkeeping for tests — never transmitted.
	Dummy bool
}

// RandomDummyMessageBlock synthesizes a message-tree cover block: a fresh
// random key encrypts a zero payload of blockSize bytes, so it is
// byte-for-byte indistinguishable from a real message block of the same
// size (spec §9, dummy indistinguishability).
func RandomDummyMessageBlock(blockSize int) (Block, error) {
	key, err := cryptoutil.GenerateKey()
	if err != nil {
		return Block{}, err
	}
	payload := make([]byte, blockSize)
	ct, err := cryptoutil.Encrypt(key, payload, nil)
	if err != nil {
		return Block{}, err
	}
	renc, err := cryptoutil.GenerateKey()
	if err != nil {
		return Block{}, err
	}
	slot, err := randomUint64()
	if err != nil {
		return Block{}, err
	}
	return Block{
		Kind:       KindMessage,
		Ciphertext: *ct,
		SenderSlot: slot,
		RencKey:    renc,
		Dummy:      true,
	}, nil
}

// RandomDummyNotificationBlock synthesizes a notification-tree cover block.
func RandomDummyNotificationBlock() (Block, error) {
	key, err := cryptoutil.GenerateKey()
	if err != nil {
		return Block{}, err
	}
	payload := make([]byte, 16) // (epoch, leaf) pointer-sized payload
	ct, err := cryptoutil.Encrypt(key, payload, nil)
	if err != nil {
		return Block{}, err
	}
	slot, err := randomUint64()
	if err != nil {
		return Block{}, err
	}
	return Block{
		Kind:       KindNotification,
		Ciphertext: *ct,
		SenderSlot: slot,
		Dummy:      true,
	}, nil
}

func randomUint64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range buf {
		v = (v << 8) | uint64(b)
	}
	return v, nil
}

// RandomLeafLabel returns a fresh pseudorandom leaf label of the given
// depth, used to route dummy writes to leaves indistinguishable from real
// PRF outputs (spec §9).
func RandomLeafLabel(depth int) ([]byte, error) {
	nbytes := (depth + 7) / 8
	buf := make([]byte, nbytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, err
	}
	return cryptoutil.MaskToDepth(buf, depth), nil
}
