// Command orizon-brkstat drives a BrkAllocator through a scripted
// sequence of alloc/realloc/free calls and prints its stats and
// directory dump. It exists purely as developer tooling: spec.md's
// "library-only, no CLI" Non-goal scopes the bookkeeper itself, not the
// diagnostic tooling the runtime ships alongside each allocator backend
// (see cmd/orizon-mockgen for the sibling precedent).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/orizon-lang/orizon/internal/allocator"
	"github.com/orizon-lang/orizon/internal/allocator/brkhost"
)

func main() {
	var (
		scriptPath string
		debug      bool
	)

	flag.StringVar(&scriptPath, "script", "", "path to a script of alloc/realloc/free commands (required)")
	flag.BoolVar(&debug, "debug", true, "enable directory invariant checking")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -script <path> [-debug=true|false]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Script lines (one command per line, lines starting with # are comments):")
		fmt.Fprintln(os.Stderr, "  alloc <size>")
		fmt.Fprintln(os.Stderr, "  realloc <slot> <newsize>")
		fmt.Fprintln(os.Stderr, "  free <slot>")
	}
	flag.Parse()

	if strings.TrimSpace(scriptPath) == "" {
		fmt.Fprintln(os.Stderr, "Error: -script is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(scriptPath, debug); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(scriptPath string, debug bool) error {
	host, err := brkhost.NewDefaultHostSegment()
	if err != nil {
		return fmt.Errorf("failed to create host segment: %w", err)
	}

	alloc, err := allocator.NewBrkAllocator(host, &allocator.Config{EnableDebug: debug})
	if err != nil {
		return fmt.Errorf("failed to create brk allocator: %w", err)
	}

	f, err := os.Open(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to open script %q: %w", scriptPath, err)
	}
	defer f.Close()

	var slots []unsafe.Pointer

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := execLine(alloc, &slots, line); err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	stats := alloc.Stats()
	fmt.Printf("total_allocated: %d\n", stats.TotalAllocated)
	fmt.Printf("total_freed: %d\n", stats.TotalFreed)
	fmt.Printf("active_allocations: %d\n", stats.ActiveAllocations)
	fmt.Printf("allocation_count: %d\n", stats.AllocationCount)
	fmt.Printf("free_count: %d\n", stats.FreeCount)
	fmt.Println()
	fmt.Print(alloc.DebugString())

	return nil
}

func execLine(alloc *allocator.BrkAllocator, slots *[]unsafe.Pointer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "alloc":
		if len(fields) != 2 {
			return fmt.Errorf("alloc expects 1 argument, got %d", len(fields)-1)
		}

		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", fields[1], err)
		}

		*slots = append(*slots, alloc.Alloc(uintptr(size)))

	case "realloc":
		if len(fields) != 3 {
			return fmt.Errorf("realloc expects 2 arguments, got %d", len(fields)-1)
		}

		slot, err := slotIndex(*slots, fields[1])
		if err != nil {
			return err
		}

		newSize, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", fields[2], err)
		}

		(*slots)[slot] = alloc.Realloc((*slots)[slot], uintptr(newSize))

	case "free":
		if len(fields) != 2 {
			return fmt.Errorf("free expects 1 argument, got %d", len(fields)-1)
		}

		slot, err := slotIndex(*slots, fields[1])
		if err != nil {
			return err
		}

		alloc.Free((*slots)[slot])
		(*slots)[slot] = nil

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}

	return nil
}

func slotIndex(slots []unsafe.Pointer, s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q: %w", s, err)
	}

	if idx < 0 || idx >= len(slots) {
		return 0, fmt.Errorf("slot %d out of range (%d allocated so far)", idx, len(slots))
	}

	return idx, nil
}
