package index

import (
	"sync/atomic"

	"github.com/docscout/docscout/internal/store"
)

// Handle is the atomically swappable pointer to the serving vector
// index. Readers snapshot once per query and keep using that snapshot
// even while a rebuild swaps in a replacement, so a query never sees a
// half-built structure.
type Handle struct {
	ptr atomic.Pointer[indexSlot]
}

// indexSlot boxes the interface value for atomic.Pointer.
type indexSlot struct {
	idx store.VectorIndex
}

// NewHandle creates an empty handle. Snapshot returns nil until the
// first Swap.
func NewHandle() *Handle {
	return &Handle{}
}

// Snapshot returns the currently serving index, or nil when no build
// has completed yet.
func (h *Handle) Snapshot() store.VectorIndex {
	slot := h.ptr.Load()
	if slot == nil {
		return nil
	}
	return slot.idx
}

// Swap installs idx as the serving index and returns the previous one
// (nil on first install). The previous index is left open: in-flight
// queries may still hold it.
func (h *Handle) Swap(idx store.VectorIndex) store.VectorIndex {
	old := h.ptr.Swap(&indexSlot{idx: idx})
	if old == nil {
		return nil
	}
	return old.idx
}

// Ready reports whether a serving index is installed.
func (h *Handle) Ready() bool {
	return h.ptr.Load() != nil
}
