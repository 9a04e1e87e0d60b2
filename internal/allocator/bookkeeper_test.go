package allocator

import (
	"testing"
	"unsafe"

	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/orizon/internal/allocator/brkhost"
)

func newTestBrkAllocator(t *testing.T) *BrkAllocator {
	t.Helper()

	host, err := brkhost.NewDefaultHostSegment()
	if err != nil {
		t.Fatalf("failed to create host segment: %v", err)
	}

	a, err := NewBrkAllocator(host, &Config{EnableDebug: true})
	if err != nil {
		t.Fatalf("NewBrkAllocator: %v", err)
	}

	return a
}

func TestBrkAllocatorAllocFreeRoundTrip(t *testing.T) {
	a := newTestBrkAllocator(t)

	p := a.Alloc(64)
	if p == nil {
		t.Fatal("Alloc(64) returned nil")
	}

	stats := a.Stats()
	if stats.ActiveAllocations != 1 {
		t.Errorf("ActiveAllocations = %d, want 1", stats.ActiveAllocations)
	}

	if stats.TotalAllocated != 64 {
		t.Errorf("TotalAllocated = %d, want 64", stats.TotalAllocated)
	}

	a.Free(p)

	stats = a.Stats()
	if stats.ActiveAllocations != 0 {
		t.Errorf("ActiveAllocations after Free = %d, want 0", stats.ActiveAllocations)
	}

	if stats.TotalFreed != 64 {
		t.Errorf("TotalFreed = %d, want 64", stats.TotalFreed)
	}

	if stats.BytesInUse != 0 {
		t.Errorf("BytesInUse = %d, want 0", stats.BytesInUse)
	}
}

func TestBrkAllocatorAllocZeroReturnsNil(t *testing.T) {
	a := newTestBrkAllocator(t)

	if p := a.Alloc(0); p != nil {
		t.Errorf("Alloc(0) = %v, want nil", p)
	}
}

func TestBrkAllocatorFreeUnknownOrNilIsNoop(t *testing.T) {
	a := newTestBrkAllocator(t)

	a.Free(nil)
	a.Free(unsafe.Pointer(uintptr(0xdeadbeef))) //nolint:govet // deliberately bogus, never dereferenced

	if stats := a.Stats(); stats.FreeCount != 0 {
		t.Errorf("FreeCount = %d, want 0", stats.FreeCount)
	}
}

func TestBrkAllocatorReallocNilActsAsAlloc(t *testing.T) {
	a := newTestBrkAllocator(t)

	p := a.Realloc(nil, 32)
	if p == nil {
		t.Fatal("Realloc(nil, 32) returned nil")
	}

	if stats := a.Stats(); stats.ActiveAllocations != 1 {
		t.Errorf("ActiveAllocations = %d, want 1", stats.ActiveAllocations)
	}
}

func TestBrkAllocatorReallocZeroActsAsFree(t *testing.T) {
	a := newTestBrkAllocator(t)

	p := a.Alloc(32)

	got := a.Realloc(p, 0)
	if got != nil {
		t.Errorf("Realloc(p, 0) = %v, want nil", got)
	}

	if stats := a.Stats(); stats.ActiveAllocations != 0 {
		t.Errorf("ActiveAllocations after Realloc-to-zero = %d, want 0", stats.ActiveAllocations)
	}
}

func TestBrkAllocatorReallocGrowsAndShrinks(t *testing.T) {
	a := newTestBrkAllocator(t)

	p := a.Alloc(32)

	grown := a.Realloc(p, 96)
	if grown == nil {
		t.Fatal("Realloc grow returned nil")
	}

	if stats := a.Stats(); stats.TotalAllocated != 32+64 {
		t.Errorf("TotalAllocated after grow = %d, want %d", stats.TotalAllocated, 32+64)
	}

	shrunk := a.Realloc(grown, 16)
	if shrunk == nil {
		t.Fatal("Realloc shrink returned nil")
	}

	stats := a.Stats()
	if stats.ActiveAllocations != 1 {
		t.Errorf("ActiveAllocations after shrink = %d, want 1", stats.ActiveAllocations)
	}

	if stats.TotalFreed != 96-16 {
		t.Errorf("TotalFreed after shrink = %d, want %d", stats.TotalFreed, 96-16)
	}
}

func TestBrkAllocatorResetClearsStatsOnly(t *testing.T) {
	a := newTestBrkAllocator(t)

	p := a.Alloc(48)
	a.Reset()

	stats := a.Stats()
	if stats.TotalAllocated != 0 || stats.TotalFreed != 0 || stats.AllocationCount != 0 {
		t.Errorf("Reset did not clear counters: %+v", stats)
	}

	// The directory itself is untouched: the live pointer is still
	// trackable and freeing it works normally.
	a.Free(p)

	if stats := a.Stats(); stats.TotalFreed != 48 {
		t.Errorf("TotalFreed after post-Reset Free = %d, want 48", stats.TotalFreed)
	}
}

func TestBrkAllocatorDebugString(t *testing.T) {
	a := newTestBrkAllocator(t)

	a.Alloc(16)

	if s := a.DebugString(); s == "" {
		t.Error("DebugString returned empty string")
	}
}

func TestBrkAllocatorRejectsIncompatibleHostAPIVersion(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := brkhost.NewMockHostSegment(ctrl)
	host.EXPECT().APIVersion().Return("0.9.0").AnyTimes()

	_, err := NewBrkAllocator(host, &Config{})
	if err == nil {
		t.Fatal("NewBrkAllocator accepted a host reporting an incompatible API version")
	}
}

func TestBrkAllocatorAcceptsCustomHostAPIConstraint(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := brkhost.NewMockHostSegment(ctrl)
	host.EXPECT().APIVersion().Return("2.3.0").AnyTimes()

	_, err := NewBrkAllocator(host, &Config{HostAPIConstraint: ">= 2.0.0, < 3.0.0"})
	if err != nil {
		t.Errorf("NewBrkAllocator rejected a host satisfying the custom constraint: %v", err)
	}
}

func TestBrkAllocatorOOMPanicsViaFaultAfter(t *testing.T) {
	real, err := brkhost.NewDefaultHostSegment()
	if err != nil {
		t.Fatalf("failed to create host segment: %v", err)
	}

	faulty := &brkhost.FaultAfter{Real: real, N: 1}

	a, err := NewBrkAllocator(faulty, &Config{EnableDebug: true})
	if err != nil {
		t.Fatalf("NewBrkAllocator: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Alloc against an immediately-faulting host did not panic")
		}
	}()

	a.Alloc(64)
}
