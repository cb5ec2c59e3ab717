package tree

import (
	"bytes"
	"testing"

	"github.com/myco-org/myco/internal/bucket"
)

func dummyFactory() (bucket.Block, error) {
	return bucket.RandomDummyNotificationBlock()
}

// Property 1: path addressing. read_path(leaf) returns D+1 buckets
// ordered leaf-to-root, each on P(leaf).
func TestReadPathAddressing(t *testing.T) {
	const depth = 4
	tr, err := New(depth, 4, dummyFactory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for leaf := uint64(0); leaf < 1<<depth; leaf++ {
		path := tr.ReadPath(leaf)
		if len(path) != depth+1 {
			t.Fatalf("leaf %d: got %d buckets, want %d", leaf, len(path), depth+1)
		}

		expected := PathNodes(depth, leaf)
		if expected[0] != leafNodeIndex(depth, leaf) {
			t.Fatalf("leaf %d: first node not the leaf itself", leaf)
		}
		if expected[len(expected)-1] != 0 {
			t.Fatalf("leaf %d: last node not the root", leaf)
		}
	}
}

// ReadPath takes no part in mutating the tree: two reads with no
// intervening WritePathset return the same buckets. Batch install
// atomicity itself (property 2) is exercised where the real rollback
// happens, in internal/server2's TestChunkWriteMacFailureLeavesTreeUnchanged.
func TestReadPathIsReadOnly(t *testing.T) {
	const depth = 3
	tr, err := New(depth, 2, dummyFactory)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	before := tr.ReadPath(0)
	after := tr.ReadPath(0)
	for i := range before {
		if !bytes.Equal(before[i].Blocks[0].Ciphertext.Data, after[i].Blocks[0].Ciphertext.Data) {
			t.Fatalf("node %d: bucket changed between two reads with no intervening write", i)
		}
	}
}

func TestParentChildIndexing(t *testing.T) {
	const depth = 5
	for leaf := uint64(0); leaf < 1<<depth; leaf++ {
		idx := leafNodeIndex(depth, leaf)
		depthOf := depth
		for idx != 0 {
			parent := ParentIndex(idx)
			if parent < 0 {
				t.Fatalf("leaf %d: ran off the tree before reaching the root", leaf)
			}
			idx = parent
			depthOf--
		}
		if depthOf != 0 {
			t.Fatalf("leaf %d: reached root at wrong depth %d", leaf, depthOf)
		}
	}
}
