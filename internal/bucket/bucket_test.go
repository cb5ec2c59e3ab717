package bucket

import (
	"bytes"
	"testing"
)

func testAuthKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestSignVerifyRoundTrip(t *testing.T) {
	dummy, err := RandomDummyMessageBlock(16)
	if err != nil {
		t.Fatalf("RandomDummyMessageBlock: %v", err)
	}
	b := Bucket{Blocks: []Block{dummy}}
	authKey := testAuthKey()
	b.Sign(authKey)
	if !b.Verify(authKey) {
		t.Fatalf("freshly signed bucket failed to verify")
	}
}

func TestVerifyFailsUnderWrongKey(t *testing.T) {
	dummy, err := RandomDummyMessageBlock(16)
	if err != nil {
		t.Fatalf("RandomDummyMessageBlock: %v", err)
	}
	b := Bucket{Blocks: []Block{dummy}}
	b.Sign(testAuthKey())
	if b.Verify([]byte("fedcba9876543210fedcba9876543210")) {
		t.Fatalf("bucket verified under the wrong key")
	}
}

func TestVerifyFailsAfterTamper(t *testing.T) {
	dummy, err := RandomDummyMessageBlock(16)
	if err != nil {
		t.Fatalf("RandomDummyMessageBlock: %v", err)
	}
	b := Bucket{Blocks: []Block{dummy}}
	authKey := testAuthKey()
	b.Sign(authKey)
	b.Blocks[0].SenderSlot++
	if b.Verify(authKey) {
		t.Fatalf("bucket verified after its contents were tampered with")
	}
}

func TestPadFillsToCapacityWithDummies(t *testing.T) {
	real, err := RandomDummyMessageBlock(16)
	if err != nil {
		t.Fatalf("RandomDummyMessageBlock: %v", err)
	}
	out, err := Pad([]Block{real}, 4, func() (Block, error) {
		return RandomDummyMessageBlock(16)
	})
	if err != nil {
		t.Fatalf("Pad: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d blocks, want 4", len(out))
	}
	if out[0].Ciphertext.Data == nil {
		t.Fatalf("first (real) block lost during padding")
	}
	for i, blk := range out[1:] {
		if !blk.Dummy {
			t.Fatalf("padding block %d not marked Dummy", i+1)
		}
	}
}

func TestPadRejectsOverflow(t *testing.T) {
	a, _ := RandomDummyMessageBlock(16)
	b, _ := RandomDummyMessageBlock(16)
	_, err := Pad([]Block{a, b}, 1, func() (Block, error) {
		return RandomDummyMessageBlock(16)
	})
	if err != ErrOverflow {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
}

func TestCloneIsDeepCopy(t *testing.T) {
	dummy, err := RandomDummyMessageBlock(16)
	if err != nil {
		t.Fatalf("RandomDummyMessageBlock: %v", err)
	}
	orig := Bucket{Blocks: []Block{dummy}}
	orig.Sign(testAuthKey())

	clone := orig.Clone()
	clone.Blocks[0].Ciphertext.Data[0] ^= 0xFF
	clone.Signature[0] ^= 0xFF

	if bytes.Equal(orig.Blocks[0].Ciphertext.Data, clone.Blocks[0].Ciphertext.Data) {
		t.Fatalf("mutating clone's ciphertext affected the original")
	}
	if bytes.Equal(orig.Signature, clone.Signature) {
		t.Fatalf("mutating clone's signature affected the original")
	}
	if !orig.Verify(testAuthKey()) {
		t.Fatalf("original bucket no longer verifies after clone mutation")
	}
}
