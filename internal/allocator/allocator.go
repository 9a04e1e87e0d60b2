// Package allocator implements the bookkeeping core of a freestanding,
// general-purpose memory allocator: a sorted, coalescing, meta-circular
// free-block directory built on top of a brkhost.HostSegment.
package allocator

import (
	"fmt"
	"unsafe"

	"github.com/orizon-lang/orizon/internal/allocator/brkhost"
)

// AllocatorKind selects which Allocator implementation Initialize wires up.
type AllocatorKind int

const (
	// BrkAllocatorKind is the sorted, coalescing free-block bookkeeper
	// over a brkhost.HostSegment.
	BrkAllocatorKind AllocatorKind = iota
)

// Allocator defines the interface for memory allocators.
type Allocator interface {
	Alloc(size uintptr) unsafe.Pointer
	Free(ptr unsafe.Pointer)
	Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer
	TotalAllocated() uintptr
	TotalFreed() uintptr
	ActiveAllocations() int
	Stats() AllocatorStats
	Reset()
}

// AllocatorStats provides allocation statistics.
type AllocatorStats struct {
	TotalAllocated    uintptr
	TotalFreed        uintptr
	ActiveAllocations int
	PeakAllocations   int
	AllocationCount   uint64
	FreeCount         uint64
	BytesInUse        uintptr
	SystemMemory      uintptr
}

// GlobalAllocator provides the default allocator for the Orizon runtime.
var GlobalAllocator Allocator

// Initialize sets up the global allocator.
func Initialize(kind AllocatorKind, options ...Option) error {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	switch kind {
	case BrkAllocatorKind:
		host, err := brkhost.NewDefaultHostSegment()
		if err != nil {
			return fmt.Errorf("failed to create brk allocator host: %w", err)
		}

		allocator, err := NewBrkAllocator(host, config)
		if err != nil {
			return fmt.Errorf("failed to create brk allocator: %w", err)
		}

		GlobalAllocator = allocator
	default:
		return fmt.Errorf("unknown allocator kind: %v", kind)
	}

	return nil
}

// Config configures an Allocator.
type Config struct {
	AlignmentSize     uintptr
	EnableTracking    bool
	EnableDebug       bool
	BrkTuning         BrkTuning
	HostAPIConstraint string
}

type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		EnableTracking: true,
		EnableDebug:    false,
		AlignmentSize:  8, // 8-byte alignment
	}
}

// Option functions.

func WithTracking(enabled bool) Option {
	return func(c *Config) { c.EnableTracking = enabled }
}

func WithDebug(enabled bool) Option {
	return func(c *Config) { c.EnableDebug = enabled }
}

func WithAlignment(alignment uintptr) Option {
	return func(c *Config) { c.AlignmentSize = alignment }
}

// WithInitialCapacity overrides BrkAllocator's directory's initial slot
// count (spec.md §4.3's INITIAL_CAPACITY), leaving the other tuning
// constants at their defaults.
func WithInitialCapacity(capacity uintptr) Option {
	return func(c *Config) {
		if c.BrkTuning == (BrkTuning{}) {
			c.BrkTuning = DefaultTuning()
		}

		c.BrkTuning.InitialCapacity = capacity
	}
}

// WithBrkTuning overrides every BrkAllocator tuning constant at once.
func WithBrkTuning(tuning BrkTuning) Option {
	return func(c *Config) { c.BrkTuning = tuning }
}

// WithHostAPIConstraint overrides the semver constraint BrkAllocator
// checks brkhost.HostSegment.APIVersion() against, in place of
// hostAPIConstraint's default ">= 1.0.0, < 2.0.0".
func WithHostAPIConstraint(constraint string) Option {
	return func(c *Config) { c.HostAPIConstraint = constraint }
}

// Global allocation functions for convenience.

// Alloc allocates memory using the global allocator.
func Alloc(size uintptr) unsafe.Pointer {
	if GlobalAllocator == nil {
		panic("Global allocator not initialized")
	}

	return GlobalAllocator.Alloc(size)
}

// Free frees memory using the global allocator.
func Free(ptr unsafe.Pointer) {
	if GlobalAllocator == nil {
		panic("Global allocator not initialized")
	}

	GlobalAllocator.Free(ptr)
}

// Realloc reallocates memory using the global allocator.
func Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if GlobalAllocator == nil {
		panic("Global allocator not initialized")
	}

	return GlobalAllocator.Realloc(ptr, newSize)
}

// GetStats returns global allocator statistics.
func GetStats() AllocatorStats {
	if GlobalAllocator == nil {
		return AllocatorStats{}
	}

	return GlobalAllocator.Stats()
}
