package allocator

import (
	"fmt"
	"unsafe"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/orizon/internal/allocator/brkhost"
)

// hostAPIConstraint bounds the brkhost.HostSegment API versions this
// bookkeeper trusts. A host reporting a version outside this range is
// rejected at construction rather than risked against IncBrk.
const hostAPIConstraint = ">= 1.0.0, < 2.0.0"

// BrkAllocator is a sorted, coalescing free-block directory grown
// against a single brkhost.HostSegment. It satisfies the Allocator
// interface so it can be selected via Initialize(BrkAllocatorKind, ...).
//
// BrkAllocator does not lock internally: concurrency safety is an
// explicit Non-goal, and callers that need it must serialize access
// themselves.
type BrkAllocator struct {
	dir    *blockDirectory
	host   brkhost.HostSegment
	config *Config

	// live tracks each still-outstanding allocation's size: the Allocator
	// interface's Free/Realloc only take a pointer, but freeInd needs a
	// size, so the size given to each still-live Alloc/Realloc result
	// is kept here. This is bookkeeping about the bookkeeper, not part
	// of its own free-list state, so it does not bear on invariant 6.
	live map[uintptr]uintptr

	totalAllocated  uintptr
	totalFreed      uintptr
	allocationCount uint64
	freeCount       uint64
	peakAllocations int
}

// NewBrkAllocator constructs a BrkAllocator over host, after checking
// that host reports an APIVersion this package understands.
func NewBrkAllocator(host brkhost.HostSegment, config *Config) (*BrkAllocator, error) {
	if config == nil {
		config = defaultConfig()
	}

	constraint := config.HostAPIConstraint
	if constraint == "" {
		constraint = hostAPIConstraint
	}

	if err := checkHostAPIVersion(host, constraint); err != nil {
		return nil, fmt.Errorf("failed to create brk allocator: %w", err)
	}

	tuning := config.BrkTuning
	if tuning == (BrkTuning{}) {
		tuning = DefaultTuning()
	}

	return &BrkAllocator{
		dir:    newBlockDirectory(host, tuning, config.EnableDebug),
		host:   host,
		config: config,
		live:   make(map[uintptr]uintptr),
	}, nil
}

// checkHostAPIVersion rejects a host whose reported API version falls
// outside constraint (hostAPIConstraint unless Config overrides it).
func checkHostAPIVersion(host brkhost.HostSegment, constraint string) error {
	v, err := semver.NewVersion(host.APIVersion())
	if err != nil {
		return fmt.Errorf("brk allocator: invalid host API version %q: %w", host.APIVersion(), err)
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("brk allocator: invalid host constraint %q: %w", constraint, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("brk allocator: host API version %s does not satisfy %s", v, constraint)
	}

	return nil
}

// alignment returns the configured allocation alignment, defaulting to
// 8 bytes.
func (a *BrkAllocator) alignment() uintptr {
	if a.config == nil || a.config.AlignmentSize == 0 {
		return 8
	}

	return a.config.AlignmentSize
}

// Alloc implements Allocator.
func (a *BrkAllocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	ptr := a.dir.alloc(size, a.alignment())

	a.live[ptr] = size
	a.totalAllocated += size
	a.allocationCount++

	if len(a.live) > a.peakAllocations {
		a.peakAllocations = len(a.live)
	}

	return unsafe.Pointer(ptr) //nolint:govet // ptr is a raw brkhost address, not a Go-managed object.
}

// Free implements Allocator. Freeing an unknown or already-freed pointer
// is a no-op.
func (a *BrkAllocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	p := uintptr(ptr)

	size, ok := a.live[p]
	if !ok {
		return
	}

	delete(a.live, p)

	a.dir.free(blockEntry{ptr: p, size: size})

	a.totalFreed += size
	a.freeCount++
}

// Realloc implements Allocator.
func (a *BrkAllocator) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if ptr == nil {
		return a.Alloc(newSize)
	}

	if newSize == 0 {
		a.Free(ptr)

		return nil
	}

	p := uintptr(ptr)

	oldSize, ok := a.live[p]
	if !ok {
		return a.Alloc(newSize)
	}

	newPtr := a.dir.realloc(blockEntry{ptr: p, size: oldSize}, newSize, a.alignment())

	delete(a.live, p)
	a.live[newPtr] = newSize

	if newSize > oldSize {
		a.totalAllocated += newSize - oldSize
	} else {
		a.totalFreed += oldSize - newSize
	}

	a.allocationCount++

	if len(a.live) > a.peakAllocations {
		a.peakAllocations = len(a.live)
	}

	return unsafe.Pointer(newPtr) //nolint:govet
}

// TotalAllocated implements Allocator.
func (a *BrkAllocator) TotalAllocated() uintptr {
	return a.totalAllocated
}

// TotalFreed implements Allocator.
func (a *BrkAllocator) TotalFreed() uintptr {
	return a.totalFreed
}

// ActiveAllocations implements Allocator.
func (a *BrkAllocator) ActiveAllocations() int {
	return len(a.live)
}

// Stats implements Allocator.
func (a *BrkAllocator) Stats() AllocatorStats {
	return AllocatorStats{
		TotalAllocated:    a.totalAllocated,
		TotalFreed:        a.totalFreed,
		ActiveAllocations: len(a.live),
		PeakAllocations:   a.peakAllocations,
		AllocationCount:   a.allocationCount,
		FreeCount:         a.freeCount,
		BytesInUse:        a.totalAllocated - a.totalFreed,
	}
}

// Reset clears accumulated statistics only: there is no way to hand the
// host-granted segment back, an explicit Non-goal.
func (a *BrkAllocator) Reset() {
	a.totalAllocated = 0
	a.totalFreed = 0
	a.allocationCount = 0
	a.freeCount = 0
	a.peakAllocations = len(a.live)
}

// DebugString renders the underlying directory for diagnostics.
func (a *BrkAllocator) DebugString() string {
	return a.dir.dumpString()
}
