// Package tree implements the binary bucket tree shared by Server2's
// message and notification instances: a fixed-depth, fixed-capacity,
// dense in-memory array with leaf-addressed path reads and atomic
// pathset writes (spec §4.1, §4.5).
//
// Addressing and the reader/writer-lock discipline are adapted from
// internal/transparency/merkle.go's Sparse Merkle Tree helpers
// (GetBit/PathPrefixAtDepth/GetSiblingPrefix) and
// internal/transparency/service.go's stateMu sync.RWMutex, generalized
// from a 256-bit sparse tree backed by Postgres rows to a fixed-depth
// dense array held entirely in memory.
package tree

import (
	"sync"

	"github.com/myco-org/myco/internal/bucket"
)

// Tree is a complete binary tree of depth Depth holding exactly
// 2^(Depth+1)-1 buckets, stored as a dense array indexed the way a binary
// heap is: root at index 0, children of i at 2i+1 and 2i+2, parent of i at
// (i-1)/2. This is equivalent to the spec's "(1<<depth)-1+leaf_prefix"
// addressing, just computed incrementally while walking up from a leaf.
type Tree struct {
	mu     sync.RWMutex
	depth  int
	z      int
	nodes  []bucket.Bucket
	newDum func() (bucket.Block, error)
}

// New allocates a tree of the given depth, with every bucket starting out
// padded to z dummy blocks via newDummy.
func New(depth, z int, newDummy func() (bucket.Block, error)) (*Tree, error) {
	t := &Tree{
		depth:  depth,
		z:      z,
		nodes:  make([]bucket.Bucket, (1<<uint(depth+1))-1),
		newDum: newDummy,
	}
	for i := range t.nodes {
		blocks, err := bucket.Pad(nil, z, newDummy)
		if err != nil {
			return nil, err
		}
		t.nodes[i] = bucket.Bucket{Blocks: blocks}
	}
	return t, nil
}

// Depth returns the tree's depth D.
func (t *Tree) Depth() int { return t.depth }

// leafNodeIndex returns the dense-array index of the node at the given
// depth whose path-prefix-as-integer is prefix.
func leafNodeIndex(depth int, prefix uint64) int {
	return (1 << uint(depth)) - 1 + int(prefix)
}

// ParentIndex returns the dense-array index of the parent of node idx, or
// -1 if idx is the root.
func ParentIndex(idx int) int {
	if idx <= 0 {
		return -1
	}
	return (idx - 1) / 2
}

// NodeIndex exposes leafNodeIndex for callers (Server1's batch pipeline)
// that need to walk a path outside the tree's own lock.
func NodeIndex(depth int, prefix uint64) int {
	return leafNodeIndex(depth, prefix)
}

// PathNodes returns the D+1 dense-array indices on P(leaf), ordered
// deep-to-shallow (leaf first, root last).
func PathNodes(depth int, leaf uint64) []int {
	idx := leafNodeIndex(depth, leaf)
	out := make([]int, 0, depth+1)
	for idx >= 0 {
		out = append(out, idx)
		idx = ParentIndex(idx)
	}
	return out
}

// ReadPath returns the D+1 buckets on P(leaf), ordered leaf-to-root
// (spec §4.1). Readers see a consistent snapshot: the whole call happens
// under the tree's read lock, so it observes either the pre- or
// post-state of a concurrent WritePathset, never a torn mix.
func (t *Tree) ReadPath(leaf uint64) []bucket.Bucket {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := PathNodes(t.depth, leaf)
	out := make([]bucket.Bucket, len(nodes))
	for i, idx := range nodes {
		out[i] = t.nodes[idx].Clone()
	}
	return out
}

// WritePathset atomically replaces the buckets at the given node indices.
// Callers (Server1's batch pipeline via Server2's ChunkWrite/
// NotifChunkStream) must have already merged any indices shared by
// multiple leaves' paths into one bucket each — duplicates here are a
// caller bug, not a runtime condition, so WritePathset takes a map rather
// than guarding against repeats.
func (t *Tree) WritePathset(buckets map[int]bucket.Bucket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for idx, b := range buckets {
		t.nodes[idx] = b
	}
}

// Snapshot returns a deep copy of the entire tree, used by Server2 to
// retain a window of past notification-tree epochs.
func (t *Tree) Snapshot() *Tree {
	t.mu.RLock()
	defer t.mu.RUnlock()

	nodes := make([]bucket.Bucket, len(t.nodes))
	for i, b := range t.nodes {
		nodes[i] = b.Clone()
	}
	return &Tree{
		depth:  t.depth,
		z:      t.z,
		nodes:  nodes,
		newDum: t.newDum,
	}
}
