// Package keys implements Myco's per-epoch key schedule: the deterministic
// expansion of a client's long-term PRF key into the four subkeys used to
// address and protect one epoch's writes, computable identically by the
// client and by Server2 (spec §3, §4.2).
package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/myco-org/myco/internal/cryptoutil"
)

// LongTermKeySize is the size of a client's long-term PRF key k_c.
const LongTermKeySize = cryptoutil.SymmetricKeySize

const (
	infoMsg  = "myco-k_msg-v1"
	infoNtf  = "myco-k_ntf-v1"
	infoRenc = "myco-k_renc-v1"
	infoAuth = "myco-k_auth-v1"
)

// Epoch bundles the four subkeys derived for one (client, epoch) pair.
type Epoch struct {
	Msg  []byte // k_msg(c,t): message-tree leaf-selection PRF key
	Ntf  []byte // k_ntf(c,t): notification-tree leaf-selection PRF key
	Renc []byte // k_renc(c,t): re-encryption key for messages addressed to c
	Auth []byte // k_auth(c,t): authentication key binding c's notifications
}

// GenerateLongTermKey returns a fresh long-term client key k_c.
func GenerateLongTermKey() ([]byte, error) {
	return cryptoutil.GenerateKey()
}

// Derive computes the four per-epoch subkeys from a client's long-term key
// and the current epoch number. Both the client and Server2 call this with
// the same inputs and must agree bit-for-bit (spec §8 property 3).
func Derive(longTerm []byte, epoch uint64) (Epoch, error) {
	if len(longTerm) != LongTermKeySize {
		return Epoch{}, fmt.Errorf("keys: invalid long-term key size: expected %d, got %d", LongTermKeySize, len(longTerm))
	}

	salt := encodeEpoch(epoch)

	msg, err := cryptoutil.DeriveKey(longTerm, salt, []byte(infoMsg), cryptoutil.SymmetricKeySize)
	if err != nil {
		return Epoch{}, err
	}
	ntf, err := cryptoutil.DeriveKey(longTerm, salt, []byte(infoNtf), cryptoutil.SymmetricKeySize)
	if err != nil {
		return Epoch{}, err
	}
	renc, err := cryptoutil.DeriveKey(longTerm, salt, []byte(infoRenc), cryptoutil.SymmetricKeySize)
	if err != nil {
		return Epoch{}, err
	}
	auth, err := cryptoutil.DeriveKey(longTerm, salt, []byte(infoAuth), cryptoutil.SymmetricKeySize)
	if err != nil {
		return Epoch{}, err
	}

	return Epoch{Msg: msg, Ntf: ntf, Renc: renc, Auth: auth}, nil
}

func encodeEpoch(epoch uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, epoch)
	return buf
}
