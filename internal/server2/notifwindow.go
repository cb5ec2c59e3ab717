package server2

import (
	"sync"

	"github.com/myco-org/myco/internal/bucket"
	"github.com/myco-org/myco/internal/mycoerr"
	"github.com/myco-org/myco/internal/tree"
)

// notifWindow retains the last E epochs of notification-tree state so
// ReadNotifs can answer queries against recently closed epochs, not just
// the current one. Modeled on the CONIKS PAD pattern (snapshots map keyed
// by epoch + an ordered eviction list), generalized from signed sparse
// Merkle roots to this package's dense bucket trees.
type notifWindow struct {
	mu       sync.Mutex
	window   int
	snapshots map[uint64]*tree.Tree
	loaded    []uint64 // ascending epoch order, oldest first
}

func newNotifWindow(window int) *notifWindow {
	return &notifWindow{
		window:    window,
		snapshots: make(map[uint64]*tree.Tree),
	}
}

// Retain stores t's notification tree snapshot, evicting the oldest
// retained epoch once the window exceeds its configured size.
func (w *notifWindow) Retain(epoch uint64, t *tree.Tree) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.snapshots[epoch] = t
	w.loaded = append(w.loaded, epoch)
	for len(w.loaded) > w.window {
		oldest := w.loaded[0]
		w.loaded = w.loaded[1:]
		delete(w.snapshots, oldest)
	}
}

// ReadPath returns the path for leaf in epoch's retained snapshot, or
// UnknownEpoch if that epoch has been evicted or never existed.
func (w *notifWindow) ReadPath(epoch, leaf uint64) ([]bucket.Bucket, error) {
	w.mu.Lock()
	snap, ok := w.snapshots[epoch]
	w.mu.Unlock()

	if !ok {
		return nil, mycoerr.New(mycoerr.UnknownEpoch, "epoch %d outside retained notification window", epoch)
	}
	return snap.ReadPath(leaf), nil
}
