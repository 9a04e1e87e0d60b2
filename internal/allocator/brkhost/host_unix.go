//go:build linux || darwin
// +build linux darwin

package brkhost

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// reservedVirtualSize is the amount of address space reserved up front
// for the emulated break. Physical pages are only committed by the
// kernel as they are touched, so this is cheap even though it is large;
// it plays the same role as a real process's top-of-heap headroom.
const reservedVirtualSize = 1 << 32 // 4 GiB of address space

// apiVersion is the semantic version this host's IncBrk/OOM contract
// conforms to; see the allocator package's checkHostAPIVersion gate.
const apiVersion = "1.2.0"

// MmapSegment emulates a brk-style program break on top of a single
// anonymous mmap, following the same base-plus-offset pointer-arithmetic
// style the balloc buddy pool uses for its own mmap'd arena: one mapping
// is taken up front, and the break is just an offset into it.
type MmapSegment struct {
	mu     sync.Mutex
	base   uintptr
	region []byte
	offset uintptr
}

// NewMmapSegment reserves reservedVirtualSize bytes of address space via
// mmap(MAP_ANONYMOUS) and returns a HostSegment backed by it. The mapping
// is never released; the allocator's segment only grows, per spec.md §5.
func NewMmapSegment() (*MmapSegment, error) {
	data, err := unix.Mmap(-1, 0, reservedVirtualSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("brkhost: mmap reservation failed: %w", err)
	}

	return &MmapSegment{
		base:   uintptr(unsafe.Pointer(&data[0])),
		region: data,
	}, nil
}

// IncBrk implements HostSegment.
func (m *MmapSegment) IncBrk(n uintptr) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > uintptr(len(m.region))-m.offset {
		return 0, &OOMError{Reason: "reserved address space exhausted"}
	}

	start := m.base + m.offset
	m.offset += n

	return start, nil
}

// APIVersion implements HostSegment.
func (m *MmapSegment) APIVersion() string {
	return apiVersion
}

// NewDefaultHostSegment returns the platform's preferred HostSegment.
func NewDefaultHostSegment() (HostSegment, error) {
	return NewMmapSegment()
}
