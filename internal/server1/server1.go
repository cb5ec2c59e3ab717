// Package server1 implements the mixer role: it stages one epoch's
// writes, then runs the cover-write/permute/deepest-fit-place/pad/sign
// pipeline and streams the resulting pathsets to Server2 (spec §4.3).
//
// Server1 never imports server2 directly — it depends only on the small
// TreeInstaller interface below, the same decoupling the teacher uses for
// internal/transparency.TransparencyAdapter so internal/crypto can queue
// key updates without importing internal/transparency.
package server1

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/cryptoutil"
	"github.com/myco-org/myco/internal/keys"
	"github.com/myco-org/myco/internal/mycoerr"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/pathset"
	"github.com/myco-org/myco/internal/ratelimit"
)

// TreeInstaller is the subset of Server2 the mixer needs: accept one
// epoch's pathset over a chunk stream. Server2's ChunkWrite and
// NotifChunkStream both satisfy this signature.
type TreeInstaller func(ctx context.Context, epoch uint64, chunks <-chan pathset.Chunk) error

// WriteRequest is one client's queued write: the wire shape spec §6 gives
// Server1's QueueWrite (ct, ct_ntf, f, f_ntf, k_renc_t, c_s).
type WriteRequest struct {
	Ciphertext      cryptoutil.Ciphertext
	NotifCiphertext cryptoutil.Ciphertext
	Leaf            []byte // f
	NotifLeaf       []byte // f_ntf
	RencKey         []byte // k_renc_t
	SenderSlot      uint64 // c_s
}

// Server1 stages writes for the current epoch and, on BatchWrite, mixes
// and streams them to Server2.
type Server1 struct {
	params params.Params

	msgInstall   TreeInstaller
	notifInstall TreeInstaller

	limiter *ratelimit.Limiter

	mu         sync.Mutex
	epoch      uint64
	numWrites  int // the expected real-write count for this epoch, <= params.B
	staged     []WriteRequest
	initialized bool

	stageMirror StagingMirror

	clientSource ClientSource
}

// StagingMirror optionally mirrors QueueWrite into an external store so a
// restarted mixer can at least observe how many writes were staged. Never
// a correctness dependency (spec's Non-goal: no crash recovery across
// epochs) — purely diagnostic, matching internal/messaging.Service's
// Redis-mirroring-of-Postgres-writes pattern.
type StagingMirror interface {
	MirrorQueueWrite(ctx context.Context, epoch uint64, senderSlot uint64) error
}

// PeerKey is the minimal recipient-address information synthesizeCovers
// needs: a registered client's public index and long-term key.
type PeerKey struct {
	Index       uint64
	LongTermKey []byte
}

// ClientSource exposes Server2's registered client population for cover
// construction (spec §4.4: "GetPrfKeys / GetAllClientPrfKeys... used by
// clients and by Server1 for cover construction"). Kept as an interface,
// the same decoupling TreeInstaller gives the tree-install RPCs, so
// server1 never imports server2 directly.
type ClientSource interface {
	GetAllClientPrfKeys(start, n int) []PeerKey
}

// New constructs a Server1 that installs message-tree and notification-tree
// pathsets via the given TreeInstallers. limiter, mirror, and clients may
// all be nil; with clients nil, cover writes fall back to context-free
// random leaves instead of a real recipient's key schedule.
func New(p params.Params, msgInstall, notifInstall TreeInstaller, limiter *ratelimit.Limiter, mirror StagingMirror, clients ClientSource) *Server1 {
	return &Server1{
		params:       p,
		msgInstall:   msgInstall,
		notifInstall: notifInstall,
		limiter:      limiter,
		stageMirror:  mirror,
		clientSource: clients,
	}
}

// BatchInit marks the start of epoch's staging phase: resets W and
// records the expected real-write count. Must precede any QueueWrite
// (spec §4.3).
func (s *Server1) BatchInit(epoch uint64, numWrites int) error {
	if numWrites < 0 || numWrites > s.params.B {
		return mycoerr.New(mycoerr.ProtocolViolation, "numWrites %d out of range [0, %d]", numWrites, s.params.B)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = epoch
	s.numWrites = numWrites
	s.staged = s.staged[:0]
	s.initialized = true
	log.Printf("[Server1] BatchInit epoch=%d numWrites=%d", epoch, numWrites)
	return nil
}

// QueueWrite appends req to the staging buffer W. Fails with Capacity if
// the buffer already holds numWrites entries (spec §4.3, §7).
func (s *Server1) QueueWrite(ctx context.Context, req WriteRequest) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return mycoerr.New(mycoerr.ProtocolViolation, "QueueWrite before BatchInit")
	}
	if len(s.staged) >= s.numWrites {
		s.mu.Unlock()
		return mycoerr.New(mycoerr.Capacity, "staging buffer full: %d/%d", len(s.staged), s.numWrites)
	}
	epoch := s.epoch
	if s.limiter != nil {
		if err := s.limiter.CheckQueueWrite(ctx, epoch, req.SenderSlot); err != nil {
			s.mu.Unlock()
			return mycoerr.Wrap(mycoerr.Capacity, err, "sender slot %d rate limited", req.SenderSlot)
		}
	}
	s.staged = append(s.staged, req)
	s.mu.Unlock()

	if s.stageMirror != nil {
		if err := s.stageMirror.MirrorQueueWrite(ctx, epoch, req.SenderSlot); err != nil {
			log.Printf("[Server1] staging mirror error (non-fatal): %v", err)
		}
	}
	return nil
}

// BatchWrite executes the batch pipeline: it pads the staged writes to
// exactly B entries with fresh cover writes, permutes them, places each
// block by deepest-fit greedy assignment on its path, pads every touched
// bucket to Z, signs, and streams the message-tree and notification-tree
// pathsets to Server2 in parallel. On success it clears W (spec §4.3).
func (s *Server1) BatchWrite(ctx context.Context, authKey []byte) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return mycoerr.New(mycoerr.ProtocolViolation, "BatchWrite before BatchInit")
	}
	if len(s.staged) != s.numWrites {
		s.mu.Unlock()
		return mycoerr.New(mycoerr.ProtocolViolation, "batch size mismatch: staged %d, expected %d", len(s.staged), s.numWrites)
	}
	writes := make([]WriteRequest, len(s.staged))
	copy(writes, s.staged)
	epoch := s.epoch
	s.mu.Unlock()

	full, err := s.synthesizeCovers(writes, epoch)
	if err != nil {
		return err
	}

	perm, err := fisherYates(len(full))
	if err != nil {
		return err
	}
	mixed := make([]WriteRequest, len(full))
	for i, p := range perm {
		mixed[i] = full[p]
	}

	msgEntries := make([]pathset.LeafEntry, len(mixed))
	notifEntries := make([]pathset.LeafEntry, len(mixed))
	for i, w := range mixed {
		msgEntries[i] = pathset.LeafEntry{
			Leaf: w.Leaf,
			Block: bucket.Block{
				Kind:       bucket.KindMessage,
				Ciphertext: w.Ciphertext,
				SenderSlot: w.SenderSlot,
				RencKey:    w.RencKey,
			},
		}
		notifEntries[i] = pathset.LeafEntry{
			Leaf: w.NotifLeaf,
			Block: bucket.Block{
				Kind:       bucket.KindNotification,
				Ciphertext: w.NotifCiphertext,
				SenderSlot: w.SenderSlot,
			},
		}
	}

	msgDummy := func() (bucket.Block, error) { return bucket.RandomDummyMessageBlock(s.params.BlockSize) }
	notifDummy := func() (bucket.Block, error) { return bucket.RandomDummyNotificationBlock() }

	msgPS, err := pathset.Build(msgEntries, s.params.D, s.params.Z, authKey, msgDummy)
	if err != nil {
		return err
	}
	notifPS, err := pathset.Build(notifEntries, s.params.D, s.params.Z, authKey, notifDummy)
	if err != nil {
		return err
	}

	if err := s.streamBoth(ctx, epoch, msgPS, notifPS); err != nil {
		return err
	}

	s.mu.Lock()
	s.staged = s.staged[:0]
	s.initialized = false
	s.mu.Unlock()

	log.Printf("[Server1] BatchWrite epoch=%d entries=%d complete", epoch, len(mixed))
	return nil
}

// synthesizeCovers pads writes up to params.B with fresh dummy writes
// whose leaves and ciphertexts are indistinguishable from real ones
// (spec §4.3 step 1, §9).
func (s *Server1) synthesizeCovers(writes []WriteRequest, epoch uint64) ([]WriteRequest, error) {
	full := make([]WriteRequest, len(writes), s.params.B)
	copy(full, writes)

	var population []PeerKey
	if s.clientSource != nil {
		population = s.clientSource.GetAllClientPrfKeys(0, 0)
	}

	for len(full) < s.params.B {
		msgBlock, err := bucket.RandomDummyMessageBlock(s.params.BlockSize)
		if err != nil {
			return nil, err
		}
		notifBlock, err := bucket.RandomDummyNotificationBlock()
		if err != nil {
			return nil, err
		}
		leaf, notifLeaf, err := s.coverLeaves(population, epoch, msgBlock.SenderSlot)
		if err != nil {
			return nil, err
		}
		full = append(full, WriteRequest{
			Ciphertext:      msgBlock.Ciphertext,
			NotifCiphertext: notifBlock.Ciphertext,
			Leaf:            leaf,
			NotifLeaf:       notifLeaf,
			RencKey:         msgBlock.RencKey,
			SenderSlot:      msgBlock.SenderSlot,
		})
	}
	return full, nil
}

// coverLeaves picks the (f, f_ntf) pair for one synthesized cover write.
// With a known client population, the cover is routed through a real
// registered recipient's per-epoch key schedule under a fresh sender
// slot — the leaves are then genuine PRF outputs, not merely uniform
// random bits, so they are indistinguishable from a real write even to
// an adversary who could otherwise distinguish PRF structure from noise.
// With no population known (population empty), it falls back to a
// context-free random leaf label.
func (s *Server1) coverLeaves(population []PeerKey, epoch uint64, senderSlot uint64) (leaf, notifLeaf []byte, err error) {
	if len(population) == 0 {
		leaf, err = bucket.RandomLeafLabel(s.params.D)
		if err != nil {
			return nil, nil, err
		}
		notifLeaf, err = bucket.RandomLeafLabel(s.params.D)
		if err != nil {
			return nil, nil, err
		}
		return leaf, notifLeaf, nil
	}

	idx, err := randIntn(len(population))
	if err != nil {
		return nil, nil, err
	}
	peer := population[idx]

	epochKeys, err := keys.Derive(peer.LongTermKey, epoch)
	if err != nil {
		return nil, nil, fmt.Errorf("server1: derive cover recipient epoch keys: %w", err)
	}
	leaf = cryptoutil.PRFLeaf(epochKeys.Msg, senderSlot, s.params.D)
	notifLeaf = cryptoutil.PRFLeaf(epochKeys.Ntf, senderSlot, s.params.D)
	return leaf, notifLeaf, nil
}

// streamBoth streams the message-tree and notification-tree pathsets to
// their respective installers concurrently; if either install fails, the
// other's error (if any) is still observed by draining both.
func (s *Server1) streamBoth(ctx context.Context, epoch uint64, msgPS, notifPS *pathset.Pathset) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = streamPathset(ctx, epoch, msgPS, s.msgInstall)
	}()
	go func() {
		defer wg.Done()
		errs[1] = streamPathset(ctx, epoch, notifPS, s.notifInstall)
	}()
	wg.Wait()

	if errs[0] != nil {
		return fmt.Errorf("server1: message pathset install: %w", errs[0])
	}
	if errs[1] != nil {
		return fmt.Errorf("server1: notification pathset install: %w", errs[1])
	}
	return nil
}

func streamPathset(ctx context.Context, epoch uint64, ps *pathset.Pathset, install TreeInstaller) error {
	ch := make(chan pathset.Chunk)
	errCh := make(chan error, 1)
	go func() {
		errCh <- install(ctx, epoch, ch)
	}()
	for _, c := range ps.Chunks() {
		select {
		case ch <- c:
		case <-ctx.Done():
			close(ch)
			return ctx.Err()
		}
	}
	close(ch)
	return <-errCh
}
