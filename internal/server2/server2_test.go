package server2

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/mycoerr"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/pathset"
)

func testParams() params.Params {
	return params.Params{D: 3, Z: 2, B: 4, BlockSize: 32, E: 2}
}

func newTestServer(t *testing.T) (*Server2, []byte) {
	t.Helper()
	authKey := []byte("0123456789abcdef0123456789abcdef")
	s, err := New(testParams(), authKey, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, authKey
}

func buildPathset(t *testing.T, s *Server2, authKey []byte, leaf []byte) *pathset.Pathset {
	t.Helper()
	blk, err := bucket.RandomDummyMessageBlock(s.params.BlockSize)
	if err != nil {
		t.Fatalf("RandomDummyMessageBlock: %v", err)
	}
	entries := []pathset.LeafEntry{{Leaf: leaf, Block: blk}}
	newDummy := func() (bucket.Block, error) { return bucket.RandomDummyMessageBlock(s.params.BlockSize) }
	ps, err := pathset.Build(entries, s.params.D, s.params.Z, authKey, newDummy)
	if err != nil {
		t.Fatalf("pathset.Build: %v", err)
	}
	return ps
}

func TestAddPrfKeyDuplicateRejected(t *testing.T) {
	s, _ := newTestServer(t)
	id := uuid.New()

	if _, err := s.AddPrfKey(id, make([]byte, 32)); err != nil {
		t.Fatalf("first AddPrfKey: %v", err)
	}
	_, err := s.AddPrfKey(id, make([]byte, 32))
	if !mycoerr.Is(err, mycoerr.ProtocolViolation) {
		t.Fatalf("expected ProtocolViolation on duplicate registration, got %v", err)
	}
}

// AddPrfKey must be refused for the whole duration of a ChunkWrite
// install, not just while the tree is actually being mutated — the guard
// is entered before the chunk stream is even fully collected (DESIGN.md
// open-question (c)).
func TestAddPrfKeyRejectedDuringChunkWriteInFlight(t *testing.T) {
	s, authKey := newTestServer(t)
	leaf, err := bucket.RandomLeafLabel(s.params.D)
	if err != nil {
		t.Fatalf("RandomLeafLabel: %v", err)
	}
	ps := buildPathset(t, s, authKey, leaf)
	chunks := ps.Chunks()

	ch := make(chan pathset.Chunk)
	done := make(chan error, 1)
	go func() {
		done <- s.ChunkWrite(context.Background(), 1, ch)
	}()

	// Feed every chunk but the last: ChunkWrite is now blocked inside
	// collectChunks, with the install guard already held.
	for _, c := range chunks[:len(chunks)-1] {
		ch <- c
	}

	if _, err := s.AddPrfKey(uuid.New(), make([]byte, 32)); !mycoerr.Is(err, mycoerr.ProtocolViolation) {
		t.Fatalf("expected ProtocolViolation while ChunkWrite is in flight, got %v", err)
	}

	ch <- chunks[len(chunks)-1]
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("ChunkWrite: %v", err)
	}

	if _, err := s.AddPrfKey(uuid.New(), make([]byte, 32)); err != nil {
		t.Fatalf("AddPrfKey after install completed: %v", err)
	}
}

func TestChunkWriteInstallsAndVerifies(t *testing.T) {
	s, authKey := newTestServer(t)
	leaf, err := bucket.RandomLeafLabel(s.params.D)
	if err != nil {
		t.Fatalf("RandomLeafLabel: %v", err)
	}
	ps := buildPathset(t, s, authKey, leaf)

	ch := make(chan pathset.Chunk)
	go func() {
		defer close(ch)
		for _, c := range ps.Chunks() {
			ch <- c
		}
	}()

	if err := s.ChunkWrite(context.Background(), 1, ch); err != nil {
		t.Fatalf("ChunkWrite: %v", err)
	}
}

// Property 2: batch install atomicity. A corrupted bucket signature must
// leave the tree entirely unchanged.
func TestChunkWriteMacFailureLeavesTreeUnchanged(t *testing.T) {
	s, authKey := newTestServer(t)
	leaf, err := bucket.RandomLeafLabel(s.params.D)
	if err != nil {
		t.Fatalf("RandomLeafLabel: %v", err)
	}
	before := s.Read(0)

	ps := buildPathset(t, s, authKey, leaf)
	chunks := ps.Chunks()
	chunks[0].Bucket.Signature[0] ^= 0xFF // flip a byte: S5 MAC tamper

	ch := make(chan pathset.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)

	err = s.ChunkWrite(context.Background(), 1, ch)
	if !mycoerr.Is(err, mycoerr.CryptoFailure) {
		t.Fatalf("expected CryptoFailure, got %v", err)
	}

	after := s.Read(0)
	for i := range before {
		if !bytes.Equal(before[i].Blocks[0].Ciphertext.Data, after[i].Blocks[0].Ciphertext.Data) {
			t.Fatalf("tree mutated despite failed install")
		}
	}
}

func TestChunkWriteAbortsWithoutFinalChunk(t *testing.T) {
	s, authKey := newTestServer(t)
	leaf, err := bucket.RandomLeafLabel(s.params.D)
	if err != nil {
		t.Fatalf("RandomLeafLabel: %v", err)
	}
	ps := buildPathset(t, s, authKey, leaf)
	chunks := ps.Chunks()
	chunks[len(chunks)-1].IsLast = false // drop the terminator

	ch := make(chan pathset.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)

	err = s.ChunkWrite(context.Background(), 1, ch)
	if !mycoerr.Is(err, mycoerr.StreamAborted) {
		t.Fatalf("expected StreamAborted, got %v", err)
	}
}

// Property 7: notification window. ReadNotifs for an epoch outside the
// retained window fails; within the window it succeeds.
func TestNotifWindowEviction(t *testing.T) {
	s, authKey := newTestServer(t)

	install := func(epoch uint64) {
		leaf, err := bucket.RandomLeafLabel(s.params.D)
		if err != nil {
			t.Fatalf("RandomLeafLabel: %v", err)
		}
		blk, err := bucket.RandomDummyNotificationBlock()
		if err != nil {
			t.Fatalf("RandomDummyNotificationBlock: %v", err)
		}
		newDummy := func() (bucket.Block, error) { return bucket.RandomDummyNotificationBlock() }
		ps, err := pathset.Build([]pathset.LeafEntry{{Leaf: leaf, Block: blk}}, s.params.D, s.params.Z, authKey, newDummy)
		if err != nil {
			t.Fatalf("pathset.Build: %v", err)
		}
		ch := make(chan pathset.Chunk, len(ps.Chunks()))
		for _, c := range ps.Chunks() {
			ch <- c
		}
		close(ch)
		if err := s.NotifChunkStream(context.Background(), epoch, ch); err != nil {
			t.Fatalf("NotifChunkStream epoch %d: %v", epoch, err)
		}
	}

	// E=2: the window retains the last two installed epochs. After
	// epochs 1 and 2, both are still retained.
	install(1)
	install(2)

	results := s.ReadNotifs([]ReadNotifsRequest{{Epoch: 1, Indices: []uint64{0}}})
	if results[0].Err != nil {
		t.Fatalf("epoch 1 should still be in window: %v", results[0].Err)
	}

	// Installing epoch 3 evicts epoch 1 (S6: write at t=1, advance E
	// epochs, read for t=1 now fails; t=2 still succeeds).
	install(3)
	results = s.ReadNotifs([]ReadNotifsRequest{{Epoch: 1, Indices: []uint64{0}}})
	if !mycoerr.Is(results[0].Err, mycoerr.UnknownEpoch) {
		t.Fatalf("expected UnknownEpoch for evicted epoch 1, got %v", results[0].Err)
	}
	results = s.ReadNotifs([]ReadNotifsRequest{{Epoch: 2, Indices: []uint64{0}}})
	if results[0].Err != nil {
		t.Fatalf("epoch 2 should still be in window: %v", results[0].Err)
	}
}

func TestPreGenerateTestData(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.PreGenerateTestData(); err != nil {
		t.Fatalf("PreGenerateTestData: %v", err)
	}
	path := s.Read(0)
	if len(path) != s.params.D+1 {
		t.Fatalf("got %d buckets, want %d", len(path), s.params.D+1)
	}
	for _, b := range path {
		if len(b.Blocks) != s.params.Z {
			t.Fatalf("bucket not padded to Z: got %d", len(b.Blocks))
		}
	}
}
