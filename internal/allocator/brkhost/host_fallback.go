//go:build !linux && !darwin
// +build !linux,!darwin

package brkhost

import (
	"runtime"
	"sync"
	"unsafe"
)

const reservedVirtualSize = 1 << 30 // 1 GiB, heap-backed platforms get less headroom

const apiVersion = "1.2.0"

// HeapSegment emulates a brk-style program break on top of a single
// pinned Go byte slice, for platforms without an mmap-backed
// implementation. The slice is kept alive for the process lifetime via
// runtime.KeepAlive, the same technique a bootstrap-mode system
// allocator uses to keep a Go-heap-backed allocation reachable.
type HeapSegment struct {
	mu     sync.Mutex
	base   uintptr
	region []byte
	offset uintptr
}

// NewHeapSegment allocates reservedVirtualSize bytes from the Go heap
// and returns a HostSegment backed by it.
func NewHeapSegment() (*HeapSegment, error) {
	data := make([]byte, reservedVirtualSize)
	runtime.KeepAlive(data)

	return &HeapSegment{
		base:   uintptr(unsafe.Pointer(&data[0])),
		region: data,
	}, nil
}

// IncBrk implements HostSegment.
func (h *HeapSegment) IncBrk(n uintptr) (uintptr, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > uintptr(len(h.region))-h.offset {
		return 0, &OOMError{Reason: "reserved heap segment exhausted"}
	}

	start := h.base + h.offset
	h.offset += n

	runtime.KeepAlive(h.region)

	return start, nil
}

// APIVersion implements HostSegment.
func (h *HeapSegment) APIVersion() string {
	return apiVersion
}

// NewDefaultHostSegment returns the platform's preferred HostSegment.
func NewDefaultHostSegment() (HostSegment, error) {
	return NewHeapSegment()
}
