package allocator

import "unsafe"

// blockEntry is the unit the free-block bookkeeper tracks: a half-open
// interval [ptr, ptr+size) on the managed heap. A zero size marks an
// occupied placeholder kept only to absorb future insert shifts; any
// other size marks a free region.
//
// blockEntry is a plain value, copy-by-bits, and never dereferences ptr
// itself; arithmetic on ptr is pointer bookkeeping, not access.
type blockEntry struct {
	ptr  uintptr
	size uintptr
}

var (
	blockEntrySize  = unsafe.Sizeof(blockEntry{})
	blockEntryAlign = unsafe.Alignof(blockEntry{})
)

// end returns the address one past the last byte of the entry.
func (b blockEntry) end() uintptr {
	return b.ptr + b.size
}

// leftTo reports whether b sits immediately before address q, i.e.
// b.end() == q.
func (b blockEntry) leftTo(q uintptr) bool {
	return b.end() == q
}

// isFree reports whether the entry describes free heap space rather
// than an occupied placeholder.
func (b blockEntry) isFree() bool {
	return b.size != 0
}

// setOccupied turns the entry into a zero-sized placeholder, keeping
// its ptr so the array slot can still absorb a future insert.
func (b *blockEntry) setOccupied() {
	b.size = 0
}
