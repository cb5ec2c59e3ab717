/*
Package cryptoutil provides the AEAD, KDF, and PRF oracles Myco's protocol
treats as opaque primitives.

ALGORITHM: AES-256-GCM is used for every block ciphertext (message
payloads and notification pointers alike) so that real and dummy blocks
are framed identically.

KEY DERIVATION: HKDF-SHA256 expands a client's long-term key into the
per-epoch subkeys described in spec §3; see the sibling keys package.

NOTE: this package is adapted from the teacher's internal/crypto/symmetric.go
sealed-sender helpers, narrowed to the one algorithm Myco actually uses.
*/
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SymmetricKeySize is the size of symmetric keys (256 bits).
const SymmetricKeySize = 32

// GCMNonceSize is the nonce size for AES-GCM.
const GCMNonceSize = 12

// Ciphertext bundles an AEAD output with the nonce used to produce it.
type Ciphertext struct {
	Data  []byte
	Nonce []byte
}

// GenerateKey returns a random 256-bit symmetric key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with AES-256-GCM and a fresh random
// nonce. additionalData is authenticated but not encrypted.
func Encrypt(key, plaintext, additionalData []byte) (*Ciphertext, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate nonce: %w", err)
	}

	return &Ciphertext{
		Data:  aead.Seal(nil, nonce, plaintext, additionalData),
		Nonce: nonce,
	}, nil
}

// Decrypt opens a Ciphertext under key. A failure here is a CryptoFailure:
// either the key is wrong (the block was not addressed to this recipient)
// or the bucket has been tampered with.
func Decrypt(key []byte, ct *Ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, ct.Nonce, ct.Data, additionalData)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: open: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("cryptoutil: invalid key size: expected %d, got %d", SymmetricKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new gcm: %w", err)
	}
	return gcm, nil
}

// DeriveKey derives keyLen bytes from masterKey using HKDF-SHA256, with
// salt and info providing domain separation between the four per-epoch
// subkeys.
func DeriveKey(masterKey, salt, info []byte, keyLen int) ([]byte, error) {
	if keyLen > 255*32 {
		return nil, fmt.Errorf("cryptoutil: requested key length too large")
	}

	kdf := hkdf.New(sha256.New, masterKey, salt, info)
	derived := make([]byte, keyLen)
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("cryptoutil: derive key: %w", err)
	}
	return derived, nil
}
