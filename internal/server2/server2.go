// Package server2 implements the tree-host role: it owns the message and
// notification bucket trees, the long-term client PRF-key registry, and
// accepts pathset installations streamed from Server1 (spec §4.4, §4.5).
package server2

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/mycoerr"
	"github.com/myco-org/myco/internal/params"
	"github.com/myco-org/myco/internal/pathset"
	"github.com/myco-org/myco/internal/tree"
)

// BenchmarkSink receives one record per completed pathset installation.
// Both Postgres- and S3-backed implementations live in internal/benchmark;
// a nil sink (the default) simply drops the records, matching
// internal/ratelimit.Limiter's "fail open / nil is a no-op" convention.
type BenchmarkSink interface {
	RecordInstall(ctx context.Context, rec InstallRecord) error
}

// InstallRecord summarizes one ChunkWrite/NotifChunkStream installation.
type InstallRecord struct {
	Epoch      uint64
	Tree       string // "message" or "notification"
	BucketCount int
	ByteCount  int
}

// Server2 hosts the message tree, the notification-epoch window, and the
// client PRF-key registry. All three are independently synchronized: a
// batch install on one tree never blocks reads of the other, or of the key
// registry.
type Server2 struct {
	params params.Params
	authKey []byte

	registry *keyRegistry

	msgTree *tree.Tree

	notifMu      sync.Mutex
	notifCurrent *tree.Tree
	notifWindow  *notifWindow

	// install guards AddPrfKey against running while either tree has a
	// batch install in flight (DESIGN.md open-question (c)). It is
	// shared by ChunkWrite and NotifChunkStream, which can run
	// concurrently (Server1 streams both trees in parallel), so it
	// counts active installs rather than holding a single bool.
	install installGuard

	sink BenchmarkSink
}

// New constructs a Server2 with empty message/notification trees sized by
// p, authenticating installed buckets under authKey (the shared
// Server1<->Server2 pathset-authentication key; see bucket.Bucket.Sign's
// doc comment for why this is not a per-client k_auth).
func New(p params.Params, authKey []byte, sink BenchmarkSink) (*Server2, error) {
	msgDummy := func() (bucket.Block, error) { return bucket.RandomDummyMessageBlock(p.BlockSize) }
	ntfDummy := func() (bucket.Block, error) { return bucket.RandomDummyNotificationBlock() }

	msgTree, err := tree.New(p.D, p.Z, msgDummy)
	if err != nil {
		return nil, fmt.Errorf("server2: new message tree: %w", err)
	}
	notifTree, err := tree.New(p.D, p.Z, ntfDummy)
	if err != nil {
		return nil, fmt.Errorf("server2: new notification tree: %w", err)
	}

	return &Server2{
		params:       p,
		authKey:      authKey,
		registry:     newKeyRegistry(),
		msgTree:      msgTree,
		notifCurrent: notifTree,
		notifWindow:  newNotifWindow(p.E),
		sink:         sink,
	}, nil
}

// AddPrfKey registers a new client's long-term key. Permitted only between
// epochs: it refuses while a batch installation is in flight (DESIGN.md
// Open Question (c)).
func (s *Server2) AddPrfKey(id uuid.UUID, longTermKey []byte) (*ClientRecord, error) {
	if s.install.active() {
		return nil, mycoerr.New(mycoerr.ProtocolViolation, "AddPrfKey called while a batch install is in flight")
	}
	return s.registry.Add(id, longTermKey)
}

// GetPrfKeys returns the first n registered clients' records.
func (s *Server2) GetPrfKeys(n int) []*ClientRecord {
	return s.registry.Chunk(0, n)
}

// GetAllClientPrfKeys returns up to n records starting at start, the
// chunked-dump shape spec §4.4 names explicitly.
func (s *Server2) GetAllClientPrfKeys(start, n int) []*ClientRecord {
	return s.registry.Chunk(start, n)
}

// GetMegaClientWrites streams every registered client's record, chunkSize
// at a time, over the returned channel — the effect spec §6's
// GetMegaClientWrites(chunk_index, chunk_size) names, implemented as a
// paginated registry dump since no separate per-client write log exists
// in this core (see DESIGN.md).
func (s *Server2) GetMegaClientWrites(ctx context.Context, chunkSize int) <-chan []*ClientRecord {
	out := make(chan []*ClientRecord)
	go func() {
		defer close(out)
		start := 0
		for {
			chunk := s.registry.Chunk(start, chunkSize)
			if len(chunk) == 0 {
				return
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			start += len(chunk)
		}
	}()
	return out
}

// Read returns the message-tree path for the given leaf index.
func (s *Server2) Read(leaf uint64) []bucket.Bucket {
	return s.msgTree.ReadPath(leaf)
}

// ReadNotifsRequest maps an epoch to the notification-tree leaves a client
// wants paths for.
type ReadNotifsRequest struct {
	Epoch   uint64
	Indices []uint64
}

// ReadNotifsResult carries the paths found for one requested epoch, or an
// error if that epoch is outside the retained window.
type ReadNotifsResult struct {
	Epoch uint64
	Paths [][]bucket.Bucket
	Err   error
}

// ReadNotifs answers one ReadNotifsRequest per entry in reqs from the
// retained notification-epoch window (spec §4.4). Every installed epoch,
// including the most recent one, is retained in the window (see
// NotifChunkStream), so there is no separate "live tree" fast path.
func (s *Server2) ReadNotifs(reqs []ReadNotifsRequest) []ReadNotifsResult {
	out := make([]ReadNotifsResult, len(reqs))
	for i, req := range reqs {
		paths := make([][]bucket.Bucket, 0, len(req.Indices))
		var readErr error
		for _, leaf := range req.Indices {
			p, err := s.notifWindow.ReadPath(req.Epoch, leaf)
			if err != nil {
				readErr = err
				break
			}
			paths = append(paths, p)
		}
		out[i] = ReadNotifsResult{Epoch: req.Epoch, Paths: paths, Err: readErr}
	}
	return out
}

// ChunkWrite accepts the message-tree pathset for epoch t, streamed over
// chunks, verifies every bucket's MAC, and installs atomically. A channel
// that closes before a chunk with IsLast set is a StreamAborted condition:
// the tree is left unchanged (spec §4.3 "Streaming", §7).
func (s *Server2) ChunkWrite(ctx context.Context, epoch uint64, chunks <-chan pathset.Chunk) error {
	s.install.enter()
	defer s.install.exit()

	buckets, byteCount, err := s.collectChunks(ctx, chunks)
	if err != nil {
		return err
	}

	s.msgTree.WritePathset(buckets)

	if s.sink != nil {
		_ = s.sink.RecordInstall(ctx, InstallRecord{
			Epoch:       epoch,
			Tree:        "message",
			BucketCount: len(buckets),
			ByteCount:   byteCount,
		})
	}
	return nil
}

// NotifChunkStream accepts epoch t's notification-tree pathset in
// parallel with ChunkWrite, installs it into the "current" notification
// tree, and retains a snapshot of the resulting tree in the epoch window
// under epoch.
func (s *Server2) NotifChunkStream(ctx context.Context, epoch uint64, chunks <-chan pathset.Chunk) error {
	s.install.enter()
	defer s.install.exit()

	buckets, byteCount, err := s.collectChunks(ctx, chunks)
	if err != nil {
		return err
	}

	s.notifMu.Lock()
	s.notifCurrent.WritePathset(buckets)
	snapshot := s.notifCurrent.Snapshot()
	s.notifMu.Unlock()

	s.notifWindow.Retain(epoch, snapshot)

	if s.sink != nil {
		_ = s.sink.RecordInstall(ctx, InstallRecord{
			Epoch:       epoch,
			Tree:        "notification",
			BucketCount: len(buckets),
			ByteCount:   byteCount,
		})
	}
	return nil
}

// collectChunks buffers a chunk stream, verifies every bucket's MAC, and
// returns the assembled node-index map. If the MAC check fails on any
// bucket, or the channel closes without a chunk carrying IsLast, it
// returns an error and the caller's tree is never touched (property 2:
// batch install atomicity).
func (s *Server2) collectChunks(ctx context.Context, chunks <-chan pathset.Chunk) (map[int]bucket.Bucket, int, error) {
	buckets := make(map[int]bucket.Bucket)
	byteCount := 0
	sawLast := false

loop:
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			if !c.Bucket.Verify(s.authKey) {
				return nil, 0, mycoerr.New(mycoerr.CryptoFailure, "bucket MAC failed at node %d", c.NodeIndex)
			}
			buckets[c.NodeIndex] = c.Bucket
			byteCount += bucketByteLen(c.Bucket)
			if c.IsLast {
				sawLast = true
				break loop
			}
		case <-ctx.Done():
			return nil, 0, mycoerr.Wrap(mycoerr.StreamAborted, ctx.Err(), "stream cancelled")
		}
	}

	if !sawLast {
		return nil, 0, mycoerr.New(mycoerr.StreamAborted, "stream closed without a final chunk")
	}
	return buckets, byteCount, nil
}

func bucketByteLen(b bucket.Bucket) int {
	n := len(b.Signature)
	for _, blk := range b.Blocks {
		n += len(blk.Ciphertext.Data) + len(blk.Ciphertext.Nonce) + len(blk.RencKey) + 9
	}
	return n
}

// PreGenerateTestData fills both trees with freshly padded dummy data,
// for benchmarking throughput without a real client population (spec
// §4.4).
func (s *Server2) PreGenerateTestData() error {
	msgDummy := func() (bucket.Block, error) { return bucket.RandomDummyMessageBlock(s.params.BlockSize) }
	ntfDummy := func() (bucket.Block, error) { return bucket.RandomDummyNotificationBlock() }

	fresh, err := tree.New(s.params.D, s.params.Z, msgDummy)
	if err != nil {
		return err
	}
	s.msgTree = fresh

	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	freshNotif, err := tree.New(s.params.D, s.params.Z, ntfDummy)
	if err != nil {
		return err
	}
	s.notifCurrent = freshNotif
	return nil
}

// Params returns the tree parameters this Server2 was constructed with.
func (s *Server2) Params() params.Params { return s.params }
