package allocator

import (
	"fmt"
	"unsafe"

	"github.com/orizon-lang/orizon/internal/allocator/brkhost"
)

// sentinelAddr marks an uninitialised blockDirectory: an arbitrary
// non-null, non-dereferenceable address used for both bufPtr and segEnd
// before the first host call is made.
const sentinelAddr = uintptr(1)

// BrkTuning controls how aggressively the bookkeeper over-requests
// memory from the host, and how large the directory's initial capacity
// is. The zero value is not usable; use DefaultTuning.
type BrkTuning struct {
	InitialCapacity uintptr
	BrkMin          uintptr
	BrkMultiplier   uintptr
	BrkMinExtra     uintptr
}

// DefaultTuning returns the constants spec.md §4.3 specifies:
// INITIAL_CAPACITY=16, BRK_MIN=200, BRK_MULTIPLIER=1, BRK_MIN_EXTRA=10000.
func DefaultTuning() BrkTuning {
	return BrkTuning{
		InitialCapacity: 16,
		BrkMin:          200,
		BrkMultiplier:   1,
		BrkMinExtra:     10000,
	}
}

// blockDirectory is the sorted, heap-resident free-block directory —
// spec.md's BlockVec. Its backing array lives inside the segment it
// manages: bufPtr is cast directly to a *blockEntry array rather than
// kept as an ordinary Go slice, so the directory's own storage is
// carved from the same brkhost.HostSegment as every user allocation.
type blockDirectory struct {
	host   brkhost.HostSegment
	tuning BrkTuning
	debug  bool

	bufPtr uintptr
	cap    uintptr // slot count
	length uintptr // slot count
	segEnd uintptr
}

func newBlockDirectory(host brkhost.HostSegment, tuning BrkTuning, debug bool) *blockDirectory {
	return &blockDirectory{
		host:   host,
		tuning: tuning,
		debug:  debug,
		bufPtr: sentinelAddr,
		segEnd: sentinelAddr,
	}
}

// raw views the full physical capacity of the directory buffer as a
// slice of blockEntry, the same array-cast idiom the teacher's
// copyMemory/AllocString use for raw byte buffers.
func (d *blockDirectory) raw() []blockEntry {
	if d.cap == 0 {
		return nil
	}

	return (*[1 << 28]blockEntry)(unsafe.Pointer(d.bufPtr))[:d.cap:d.cap]
}

// entries views the logically in-use portion of the directory.
func (d *blockDirectory) entries() []blockEntry {
	return d.raw()[:d.length:d.length]
}

// init performs the meta-circular bootstrap described in spec.md §4.3.
// Invoked lazily the first time reserve or allocFresh observes the
// uninitialised sentinel.
func (d *blockDirectory) init() {
	size := d.tuning.InitialCapacity*blockEntrySize + blockEntryAlign

	raw := brkhost.MustIncBrk(d.host, size)

	a := aligner(raw, blockEntryAlign)
	preStub := blockEntry{ptr: raw, size: a}

	d.bufPtr = raw + a
	d.cap = d.tuning.InitialCapacity
	d.length = 0

	bufEnd := d.bufPtr + d.cap*blockEntrySize
	trailingSize := blockEntryAlign - a
	trailing := blockEntry{ptr: bufEnd, size: trailingSize}

	d.segEnd = trailing.end()

	if preStub.size > 0 {
		d.push(preStub)
	}

	if trailing.size > 0 {
		d.push(trailing)
	}

	d.checkInvariants("init")
}

// push appends a block known to sort after every existing entry. Apart
// from insert, when it finds no placeholder to absorb, it is the only
// place that mutates length upward.
func (d *blockDirectory) push(b blockEntry) {
	if d.debug && b.size == 0 {
		panic("blockDirectory.push: pushing a zero-sized block")
	}

	if d.debug && d.length > 0 && d.entries()[d.length-1].ptr > b.ptr {
		panic("blockDirectory.push: new entry is lower than the current last entry")
	}

	d.reserve(d.length + 1)

	d.raw()[d.length] = b
	d.length++

	d.checkInvariants("push")
}

// search performs a binary search by ptr. The returned bool reports
// whether an exact match was found; in both cases idx is the index
// where block either was found or belongs.
func (d *blockDirectory) search(ptr uintptr) (idx int, found bool) {
	entries := d.entries()
	lo, hi := 0, len(entries)

	for lo < hi {
		mid := (lo + hi) / 2

		switch {
		case entries[mid].ptr < ptr:
			lo = mid + 1
		case entries[mid].ptr > ptr:
			hi = mid
		default:
			return mid, true
		}
	}

	return lo, false
}

// find returns the sort position of ptr, whether or not an entry with
// that address actually exists.
func (d *blockDirectory) find(ptr uintptr) int {
	idx, _ := d.search(ptr)

	return idx
}

// insert places block at logical index i, shifting entries in [i, n)
// one slot right to absorb an occupied placeholder at n — or, if none
// exists in [i, length), growing the directory by one slot first.
func (d *blockDirectory) insert(i int, b blockEntry) {
	n := -1

	entries := d.entries()
	for k := i; k < len(entries); k++ {
		if !entries[k].isFree() {
			n = k
			break
		}
	}

	if n == -1 {
		d.reserve(d.length + 1)

		n = int(d.length)
		d.length++
	}

	full := d.raw()
	copy(full[i+1:n+1], full[i:n])
	full[i] = b

	d.checkInvariants("insert")
}

// reserve ensures the directory can hold at least needed entries,
// growing (and, on the slow path, relocating) the backing buffer as
// necessary. This is the meta-circular linchpin spec.md §4.2 describes:
// the directory treats its own buffer as a pseudo-block and first tries
// to grow it through the same reallocInplace path used for ordinary user
// allocations. Failing that, it relocates to a buffer taken directly
// from the host.
func (d *blockDirectory) reserve(needed uintptr) {
	if d.bufPtr == sentinelAddr {
		d.init()
	}

	if needed <= d.cap {
		return
	}

	pseudo := blockEntry{ptr: d.bufPtr, size: d.cap * blockEntrySize}
	idx := d.find(pseudo.ptr)

	if err := d.reallocInplace(idx, pseudo, needed*blockEntrySize); err == nil {
		d.cap = needed
		return
	}

	oldPtr, oldLen := d.bufPtr, d.length

	growthSlack := d.cap
	if cap2 := 200 + d.cap/2; cap2 < growthSlack {
		growthSlack = cap2
	}

	newCapSlots := needed + growthSlack
	newBytes := newCapSlots * blockEntrySize

	// Not allocFresh: its pushes would re-enter reserve before the new
	// buffer is installed. The alignment slack around it is not tracked.
	brkBytes, overflow := addOverflow(newBytes, blockEntryAlign)
	if overflow {
		brkhost.OOM("reserve: size+align overflow")
	}

	raw := brkhost.MustIncBrk(d.host, brkBytes)
	newPtr := raw + aligner(raw, blockEntryAlign)

	if end := raw + brkBytes; end > d.segEnd {
		d.segEnd = end
	}

	d.bufPtr = newPtr
	d.cap = newCapSlots

	rawCopy(newPtr, oldPtr, oldLen*blockEntrySize)
	// The old buffer is not reclaimed: see spec.md §9, "directory
	// regrowth leaks" — an accepted, intentional trade-off.

	d.checkInvariants("reserve")
}

// checkInvariants verifies (I1)-(I5) from spec.md §8. It is a no-op
// unless debug mode is enabled, matching the teacher's EnableDebug-gated
// style rather than a build tag.
func (d *blockDirectory) checkInvariants(where string) {
	if !d.debug {
		return
	}

	entries := d.entries()
	if len(entries) == 0 {
		if d.length > d.cap {
			panic(fmt.Sprintf("blockDirectory[%s]: len %d exceeds cap %d", where, d.length, d.cap))
		}

		return
	}

	prevPtr := entries[0].ptr
	prevEnd := entries[0].end()

	for i := 1; i < len(entries); i++ {
		e := entries[i]
		if e.ptr < prevPtr {
			panic(fmt.Sprintf("blockDirectory[%s]: entry %d not sorted: 0x%x < 0x%x", where, i, e.ptr, prevPtr))
		}

		if e.ptr < prevEnd {
			panic(fmt.Sprintf("blockDirectory[%s]: entry %d overlaps previous entry", where, i))
		}

		if e.ptr == prevEnd && e.isFree() && entries[i-1].isFree() {
			panic(fmt.Sprintf("blockDirectory[%s]: entries %d and %d are adjacent and both free", where, i-1, i))
		}

		prevPtr = e.ptr
		prevEnd = e.end()
	}

	if entries[len(entries)-1].end() > d.segEnd {
		panic(fmt.Sprintf("blockDirectory[%s]: last entry extends past seg_end", where))
	}

	if d.length > d.cap {
		panic(fmt.Sprintf("blockDirectory[%s]: len %d exceeds cap %d", where, d.length, d.cap))
	}
}

// aligner returns the non-negative byte offset to add to p to reach the
// next multiple of align. Unlike the Rust original (which always
// returns align, never 0, even when p is already aligned), this
// implementation returns 0 for an already-aligned pointer — the
// tighter-memory option spec.md §9 offers as an open question. See
// DESIGN.md for the full rationale.
func aligner(p, align uintptr) uintptr {
	return (align - p%align) % align
}

// canonicalizeBrk inflates a requested size so each host call carries
// meaningful slack, per spec.md §4.3.
func (d *blockDirectory) canonicalizeBrk(size uintptr) uintptr {
	extra := d.tuning.BrkMultiplier * size
	if extra > d.tuning.BrkMinExtra {
		extra = d.tuning.BrkMinExtra
	}

	res := size + extra
	if res < d.tuning.BrkMin {
		res = d.tuning.BrkMin
	}

	return res
}

// allocFresh requests brand-new space from the host, carving an
// alignment pre-stub and an excess tail around the returned region.
func (d *blockDirectory) allocFresh(size, align uintptr) uintptr {
	// Set the directory up first, so its buffer sits below this region
	// and the pushes below stay in address order.
	if d.bufPtr == sentinelAddr {
		d.init()
	}

	can := d.canonicalizeBrk(size)

	brkBytes, overflow := addOverflow(can, align)
	if overflow {
		brkhost.OOM("alloc_fresh: size+align overflow")
	}

	raw := brkhost.MustIncBrk(d.host, brkBytes)

	a := aligner(raw, align)
	pre := blockEntry{ptr: raw, size: a}
	user := blockEntry{ptr: pre.end(), size: size}
	excess := blockEntry{ptr: user.end(), size: can - size}

	d.segEnd = excess.end()

	if pre.size > 0 {
		// A free last entry ending exactly at raw absorbs the pre-stub.
		if n := d.length; n > 0 && d.raw()[n-1].isFree() && d.raw()[n-1].leftTo(pre.ptr) {
			d.raw()[n-1].size += pre.size
		} else {
			d.push(pre)
		}
	}

	if excess.size > 0 {
		d.push(excess)
	}

	d.checkInvariants("allocFresh")

	return user.ptr
}

// alloc implements spec.md §4.3's alloc operation: a right-to-left scan
// of free entries looking for the first one that fits, falling back to
// allocFresh on a miss.
func (d *blockDirectory) alloc(size, align uintptr) uintptr {
	entries := d.entries()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.isFree() {
			continue
		}

		a := aligner(e.ptr, align)

		need, overflow := addOverflow(size, a)
		if overflow || e.size < need {
			continue
		}

		resultPtr := e.ptr + a

		tailIdx := i
		if a > 0 {
			full := d.raw()
			full[i].size = a
			tailIdx = i + 1
		} else {
			full := d.raw()
			full[i].setOccupied()
		}

		tailSize := e.size - need
		if tailSize > 0 {
			d.insert(tailIdx, blockEntry{ptr: resultPtr + size, size: tailSize})
		}

		d.checkInvariants("alloc")

		return resultPtr
	}

	return d.allocFresh(size, align)
}

// reallocInplace tries to grow block to new_size without moving it,
// per spec.md §4.3. It never shrinks.
//
// i is find(block.ptr): the index of block's successor (the first
// tracked entry whose ptr is >= block.ptr), since block itself, being
// occupied, is never tracked. The entry immediately after block in
// address order is therefore entries[i], not entries[i+1].
func (d *blockDirectory) reallocInplace(i int, block blockEntry, newSize uintptr) error {
	entries := d.entries()

	if i < len(entries) {
		next := entries[i]
		if next.isFree() && block.leftTo(next.ptr) && next.size+block.size >= newSize {
			consumed := newSize - block.size

			full := d.raw()
			full[i].ptr += consumed
			full[i].size -= consumed

			d.checkInvariants("reallocInplace")

			return nil
		}

		return errCannotGrowInplace
	}

	if block.leftTo(d.segEnd) {
		d.allocFresh(newSize-block.size, 1)

		d.checkInvariants("reallocInplace")

		return nil
	}

	return errCannotGrowInplace
}

// coalesceIfTouching folds full[right] into full[left] (left < right) when
// left's widened end reaches or passes right's ptr. right may be a genuine
// free neighbor — a second coalesce — or a zero-sized occupied placeholder
// left behind by an earlier exact-fit alloc; either way it must be evicted
// to the new boundary, or its stale ptr would read as overlapping left's
// enlarged span.
func coalesceIfTouching(full []blockEntry, left, right int) {
	if full[right].ptr > full[left].end() {
		return
	}

	if full[right].isFree() && full[right].end() > full[left].end() {
		full[left].size = full[right].end() - full[left].ptr
	}

	full[right].ptr = full[left].end()
	full[right].setOccupied()
}

// freeInd returns block to the directory at sort position i, coalescing
// with either or both neighbors. i is find(block.ptr): entries[i] (if any)
// is block's successor in address order and entries[i-1] (if any) is its
// predecessor. spec.md §9 flags the original's single-merge limitation as
// something "a correct implementation should" fix; this one merges both
// sides when the freed block exactly bridges two free neighbors.
func (d *blockDirectory) freeInd(i int, block blockEntry) {
	full := d.raw()
	length := int(d.length)

	switch {
	case i < length && full[i].isFree() && block.leftTo(full[i].ptr):
		// Merge right: block is absorbed into its successor, entries[i].
		// The successor's start moves back to block's start.
		full[i].ptr = block.ptr
		full[i].size += block.size

		// Double coalescing (spec.md §9): the predecessor may now reach
		// the widened entries[i], whether that slot is a free run or an
		// occupied placeholder sitting exactly at the new boundary.
		if i > 0 {
			coalesceIfTouching(full, i-1, i)
		}

	case i > 0 && full[i-1].isFree() && full[i-1].leftTo(block.ptr):
		// Merge left: block is absorbed into its predecessor, entries[i-1].
		full[i-1].size += block.size

		// Double coalescing: the successor may now reach the widened
		// predecessor, whether free or an occupied placeholder.
		if i < length {
			coalesceIfTouching(full, i-1, i)
		}

	default:
		d.insert(i, block)
	}

	d.checkInvariants("freeInd")
}

// free locates block's sort position and frees it there.
func (d *blockDirectory) free(block blockEntry) {
	i := d.find(block.ptr)
	d.freeInd(i, block)
}

// realloc implements spec.md §4.3's three-way realloc.
func (d *blockDirectory) realloc(block blockEntry, newSize, align uintptr) uintptr {
	switch {
	case newSize <= block.size:
		i := d.find(block.ptr)
		d.freeInd(i, blockEntry{ptr: block.ptr + newSize, size: block.size - newSize})

		return block.ptr

	default:
		i := d.find(block.ptr)
		if d.reallocInplace(i, block, newSize) == nil {
			return block.ptr
		}

		newPtr := d.alloc(newSize, align)
		rawCopy(newPtr, block.ptr, block.size)
		d.free(block)

		return newPtr
	}
}

var errCannotGrowInplace = fmt.Errorf("blockDirectory: cannot grow block in place")

// addOverflow adds a and b, reporting whether the result wrapped.
func addOverflow(a, b uintptr) (uintptr, bool) {
	sum := a + b

	return sum, sum < a
}

// rawCopy copies n bytes from src to dst, both raw addresses inside
// the managed segment.
func rawCopy(dst, src, n uintptr) {
	if n == 0 {
		return
	}

	dstSlice := (*[1 << 30]byte)(unsafe.Pointer(dst))[:n:n]
	srcSlice := (*[1 << 30]byte)(unsafe.Pointer(src))[:n:n]
	copy(dstSlice, srcSlice)
}

// dumpString renders the directory for diagnostics.
func (d *blockDirectory) dumpString() string {
	out := fmt.Sprintf("len: %d\ncap: %d\nseg_end: 0x%x\ncontent:\n", d.length, d.cap, d.segEnd)

	for _, e := range d.entries() {
		state := "free"
		if !e.isFree() {
			state = "occupied"
		}

		out += fmt.Sprintf("  - 0x%x .. %d (%s)\n", e.ptr, e.size, state)
	}

	return out
}
