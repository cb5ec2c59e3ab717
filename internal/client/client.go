// Package client implements the write/read recipes of spec §4.2: per-epoch
// key derivation, write construction against a recipient's long-term key,
// and the notification-then-message read that recovers a payload.
package client

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/cryptoutil"
	"github.com/myco-org/myco/internal/keys"
	"github.com/myco-org/myco/internal/mycoerr"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/server1"
	"github.com/myco-org/myco/internal/server2"
)

// Server1API is the subset of server1.Server1 a client needs: submitting
// one write per epoch. Kept as an interface, the same decoupling the
// teacher uses between internal/crypto and internal/transparency, so
// tests can substitute a fake mixer without constructing a real one.
type Server1API interface {
	QueueWrite(ctx context.Context, req server1.WriteRequest) error
}

// Server2API is the subset of server2.Server2 a client needs: reading
// message and notification paths.
type Server2API interface {
	Read(leaf uint64) []bucket.Bucket
	ReadNotifs(reqs []server2.ReadNotifsRequest) []server2.ReadNotifsResult
}

// Peer is a known contact: their stable identity, their registration
// index (used as c_s when deriving which leaf they write notifications
// to), and their published long-term key (needed to address writes to
// them as a recipient). Grounded in the teacher's internal/contacts
// notion of a per-user contact list, generalized from a Postgres-backed
// relationship table to an in-memory map the oblivious-read loop walks.
type Peer struct {
	ID          uuid.UUID
	Index       uint64
	LongTermKey []byte
}

// Client holds one user's identity and contact book.
type Client struct {
	ID          uuid.UUID
	Index       uint64
	LongTermKey []byte
	params      params.Params

	peers map[uuid.UUID]Peer
}

// New constructs a Client for an already-registered identity (ID, Index,
// and LongTermKey as returned by server2.Server2.AddPrfKey).
func New(id uuid.UUID, index uint64, longTermKey []byte, p params.Params) *Client {
	return &Client{
		ID:          id,
		Index:       index,
		LongTermKey: longTermKey,
		params:      p,
		peers:       make(map[uuid.UUID]Peer),
	}
}

// AddPeer records a contact's registration index and long-term key so
// future Write/Read calls can address them.
func (c *Client) AddPeer(p Peer) {
	c.peers[p.ID] = p
}

// Peers returns every known contact, in no particular order.
func (c *Client) Peers() []Peer {
	out := make([]Peer, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	return out
}

// Write constructs and submits one message to recipient at epoch t,
// following spec §4.2's 5-step write recipe.
func (c *Client) Write(ctx context.Context, s1 Server1API, epoch uint64, recipientID uuid.UUID, payload []byte) error {
	peer, ok := c.peers[recipientID]
	if !ok {
		return mycoerr.New(mycoerr.ProtocolViolation, "unknown recipient %s", recipientID)
	}

	recipientEpochKeys, err := keys.Derive(peer.LongTermKey, epoch)
	if err != nil {
		return fmt.Errorf("client: derive recipient epoch keys: %w", err)
	}

	// Step 1: ℓ = PRF_{k_msg(c_r,t)}(c_s), ℓ_ntf = PRF_{k_ntf(c_r,t)}(c_s).
	leaf := cryptoutil.PRFLeaf(recipientEpochKeys.Msg, c.Index, c.params.D)
	notifLeaf := cryptoutil.PRFLeaf(recipientEpochKeys.Ntf, c.Index, c.params.D)

	// c_s is bound into both ciphertexts' associated data, so the recipient
	// opens only blocks written under this sender's index.
	senderAD := binary.BigEndian.AppendUint64(nil, c.Index)

	// Step 2: ct = AEAD-Enc(k_renc(c_r,t), payload).
	ct, err := cryptoutil.Encrypt(recipientEpochKeys.Renc, payload, senderAD)
	if err != nil {
		return fmt.Errorf("client: encrypt payload: %w", err)
	}

	// Step 3: ct_ntf = AEAD-Enc(k_auth(c_r,t), (t, ℓ)).
	notifPlaintext := encodeNotifPointer(epoch, leaf)
	ctNtf, err := cryptoutil.Encrypt(recipientEpochKeys.Auth, notifPlaintext, senderAD)
	if err != nil {
		return fmt.Errorf("client: encrypt notification pointer: %w", err)
	}

	// Step 4 & 5: submit {ct, ct_ntf, f, f_ntf, k_renc_t, c_s} to Server1.
	req := server1.WriteRequest{
		Ciphertext:      *ct,
		NotifCiphertext: *ctNtf,
		Leaf:            leaf,
		NotifLeaf:       notifLeaf,
		RencKey:         recipientEpochKeys.Renc,
		SenderSlot:      c.Index,
	}
	return s1.QueueWrite(ctx, req)
}

// Read checks for messages from peerID at epoch t, following spec §4.2's
// 3-step read recipe. It returns (payload, true, nil) on a successful
// decrypt, or (nil, false, nil) if no matching notification is found —
// indistinguishable externally from a cover read.
func (c *Client) Read(ctx context.Context, s2 Server2API, epoch uint64, peerID uuid.UUID) ([]byte, bool, error) {
	peer, ok := c.peers[peerID]
	if !ok {
		return nil, false, mycoerr.New(mycoerr.ProtocolViolation, "unknown peer %s", peerID)
	}

	myEpochKeys, err := keys.Derive(c.LongTermKey, epoch)
	if err != nil {
		return nil, false, fmt.Errorf("client: derive own epoch keys: %w", err)
	}

	// Step 1: ℓ_ntf = PRF_{k_ntf(c_r,t)}(c_s) for this peer; request that
	// path from Server2.
	notifLeafBytes := cryptoutil.PRFLeaf(myEpochKeys.Ntf, peer.Index, c.params.D)
	notifLeaf := cryptoutil.LeafIndex(notifLeafBytes, c.params.D)
	senderAD := binary.BigEndian.AppendUint64(nil, peer.Index)

	results := s2.ReadNotifs([]server2.ReadNotifsRequest{{Epoch: epoch, Indices: []uint64{notifLeaf}}})
	if len(results) == 0 {
		return nil, false, nil
	}
	if results[0].Err != nil {
		return nil, false, results[0].Err
	}

	// Step 2: attempt AEAD decryption of each ct_ntf under k_auth(c_r,t).
	var msgLeaf []byte
	for _, path := range results[0].Paths {
		for _, b := range path {
			for _, blk := range b.Blocks {
				plaintext, err := cryptoutil.Decrypt(myEpochKeys.Auth, &blk.Ciphertext, senderAD)
				if err != nil {
					continue
				}
				decodedEpoch, leaf, ok := decodeNotifPointer(plaintext)
				if !ok || decodedEpoch != epoch {
					continue
				}
				msgLeaf = leaf
			}
		}
	}
	if msgLeaf == nil {
		return nil, false, nil
	}

	// Step 3: request P(ℓ) from Server2; attempt AEAD decryption of each
	// ct under k_renc(c_r,t).
	leafIdx := cryptoutil.LeafIndex(msgLeaf, c.params.D)
	path := s2.Read(leafIdx)
	for _, b := range path {
		for _, blk := range b.Blocks {
			plaintext, err := cryptoutil.Decrypt(myEpochKeys.Renc, &blk.Ciphertext, senderAD)
			if err != nil {
				continue
			}
			return plaintext, true, nil
		}
	}
	return nil, false, nil
}

// encodeNotifPointer packs (epoch, leaf) into the 16-byte ct_ntf
// plaintext: 8 bytes of epoch, then the leaf label zero-padded to 8 bytes
// (D <= 63, so a label never needs more).
func encodeNotifPointer(epoch uint64, leaf []byte) []byte {
	out := make([]byte, 16)
	for i := 0; i < 8; i++ {
		out[i] = byte(epoch >> uint(56-8*i))
	}
	copy(out[8:], leaf)
	return out
}

// decodeNotifPointer reverses encodeNotifPointer.
func decodeNotifPointer(data []byte) (epoch uint64, leaf []byte, ok bool) {
	if len(data) < 8 {
		return 0, nil, false
	}
	for i := 0; i < 8; i++ {
		epoch = (epoch << 8) | uint64(data[i])
	}
	return epoch, data[8:], true
}
