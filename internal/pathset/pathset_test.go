package pathset

import (
	"testing"

	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/mycoerr"
)

func dummyMessageBlock() (bucket.Block, error) {
	return bucket.RandomDummyMessageBlock(16)
}

func leafAt(depth int, prefix uint64) []byte {
	nbytes := (depth + 7) / 8
	buf := make([]byte, nbytes)
	for i := 0; i < depth; i++ {
		bit := (prefix >> uint(depth-1-i)) & 1
		if bit == 1 {
			buf[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return buf
}

func TestBuildPlacesEveryEntryAndPads(t *testing.T) {
	const depth, z = 3, 2
	authKey := []byte("0123456789abcdef0123456789abcdef")

	entries := []LeafEntry{
		{Leaf: leafAt(depth, 0b000), Block: bucket.Block{Kind: bucket.KindMessage}},
		{Leaf: leafAt(depth, 0b111), Block: bucket.Block{Kind: bucket.KindMessage}},
	}
	ps, err := Build(entries, depth, z, authKey, dummyMessageBlock)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for idx, b := range ps.Buckets {
		if len(b.Blocks) != z {
			t.Fatalf("node %d: got %d blocks, want %d", idx, len(b.Blocks), z)
		}
		if !b.Verify(authKey) {
			t.Fatalf("node %d: signature does not verify", idx)
		}
	}
}

// S4 Overflow rejection: more real writes sharing a path than the path's
// total residual capacity can hold returns Capacity.
func TestBuildOverflowReturnsCapacityError(t *testing.T) {
	const depth, z = 2, 1 // D+1=3 nodes on one path, capacity 1 each = 3 total
	authKey := []byte("0123456789abcdef0123456789abcdef")

	entries := make([]LeafEntry, 0, 4)
	for i := 0; i < 4; i++ {
		entries = append(entries, LeafEntry{Leaf: leafAt(depth, 0), Block: bucket.Block{Kind: bucket.KindMessage}})
	}

	_, err := Build(entries, depth, z, authKey, dummyMessageBlock)
	if !mycoerr.Is(err, mycoerr.Capacity) {
		t.Fatalf("expected Capacity error, got %v", err)
	}
}

func TestChunksAreSortedByNodeIndexWithLastMarked(t *testing.T) {
	const depth, z = 3, 2
	authKey := []byte("0123456789abcdef0123456789abcdef")

	entries := []LeafEntry{
		{Leaf: leafAt(depth, 0b000), Block: bucket.Block{Kind: bucket.KindMessage}},
		{Leaf: leafAt(depth, 0b101), Block: bucket.Block{Kind: bucket.KindMessage}},
	}
	ps, err := Build(entries, depth, z, authKey, dummyMessageBlock)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	chunks := ps.Chunks()
	for i := 1; i < len(chunks); i++ {
		if chunks[i].NodeIndex <= chunks[i-1].NodeIndex {
			t.Fatalf("chunks not sorted ascending by NodeIndex at %d", i)
		}
	}
	for i, c := range chunks {
		if c.IsLast != (i == len(chunks)-1) {
			t.Fatalf("IsLast mismatch at index %d", i)
		}
	}
}
