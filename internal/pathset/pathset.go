// Package pathset builds and streams the per-epoch pathset Server1 hands
// to Server2: the union of paths touched by one batch, with every node's
// contents merged and padded (spec §3 Pathset, §4.3 steps 3-6).
package pathset

import (
	"sort"

	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/cryptoutil"
	"github.com/myco-org/myco/internal/mycoerr"
	"github.com/myco-org/myco/internal/tree"
)

// Pathset is the flat, node-indexed collection of buckets produced by one
// batch-write pipeline run, ready to be installed into a Tree via
// WritePathset.
type Pathset struct {
	Depth   int
	Buckets map[int]bucket.Bucket
}

// LeafEntry pairs one batch entry's block with the leaf label it routes
// to (f for the message tree, f_ntf for the notification tree).
type LeafEntry struct {
	Leaf  []byte
	Block bucket.Block
}

// Build runs the deepest-fit greedy placement described in spec §4.3
// step 4 over entries (already permuted by the caller), pads every
// touched bucket to z blocks, and signs each one under authKey.
//
// Placement: for each entry in order, walk from its leaf up toward the
// root; place the block in the first node with fewer than z blocks
// already assigned. If no node on the path has room, the writes routed
// through that path have filled it and Build returns a Capacity error —
// the caller's (D, Z, B) choice does not give the batch enough room,
// which spec §7 treats as a hard parameter-sizing error.
func Build(entries []LeafEntry, depth, z int, authKey []byte, newDummy func() (bucket.Block, error)) (*Pathset, error) {
	counts := make(map[int]int)
	contents := make(map[int][]bucket.Block)
	touched := make(map[int]bool)

	for _, e := range entries {
		leaf := cryptoutil.LeafIndex(e.Leaf, depth)
		nodes := tree.PathNodes(depth, leaf)
		for _, idx := range nodes {
			touched[idx] = true
		}

		placed := false
		for _, idx := range nodes {
			if counts[idx] < z {
				contents[idx] = append(contents[idx], e.Block)
				counts[idx]++
				placed = true
				break
			}
		}
		if !placed {
			return nil, mycoerr.New(mycoerr.Capacity, "no residual capacity on path for leaf %x", e.Leaf)
		}
	}

	buckets := make(map[int]bucket.Bucket, len(touched))
	for idx := range touched {
		blocks, err := bucket.Pad(contents[idx], z, newDummy)
		if err != nil {
			return nil, mycoerr.Wrap(mycoerr.Capacity, err, "padding node %d", idx)
		}
		b := bucket.Bucket{Blocks: blocks}
		b.Sign(authKey)
		buckets[idx] = b
	}

	return &Pathset{Depth: depth, Buckets: buckets}, nil
}

// Chunk is one unit of the streaming Write/ChunkWrite/NotifChunkStream
// RPCs: a single node's bucket, with IsLast marking the final chunk of a
// pathset. A stream that closes without a chunk carrying IsLast is a
// StreamAborted condition for the receiver (spec §4.4, §7).
type Chunk struct {
	NodeIndex int
	Bucket    bucket.Bucket
	IsLast    bool
}

// Chunks splits a Pathset into a deterministically ordered slice of
// Chunks (sorted by NodeIndex), the last of which has IsLast set. Server1
// streams these to Server2 over a channel to simulate the wire's
// stream<chunks> RPC shape without depending on a real transport.
func (p *Pathset) Chunks() []Chunk {
	chunks := make([]Chunk, 0, len(p.Buckets))
	for idx, b := range p.Buckets {
		chunks = append(chunks, Chunk{NodeIndex: idx, Bucket: b})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].NodeIndex < chunks[j].NodeIndex })
	if len(chunks) > 0 {
		chunks[len(chunks)-1].IsLast = true
	}
	return chunks
}
