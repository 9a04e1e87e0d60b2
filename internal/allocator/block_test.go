package allocator

import "testing"

func TestBlockEntry(t *testing.T) {
	t.Run("End", func(t *testing.T) {
		b := blockEntry{ptr: 0x1000, size: 0x40}
		if got := b.end(); got != 0x1040 {
			t.Errorf("end() = 0x%x, want 0x1040", got)
		}
	})

	t.Run("LeftTo", func(t *testing.T) {
		b := blockEntry{ptr: 0x1000, size: 0x40}
		if !b.leftTo(0x1040) {
			t.Error("leftTo(0x1040) = false, want true")
		}

		if b.leftTo(0x1041) {
			t.Error("leftTo(0x1041) = true, want false")
		}
	})

	t.Run("IsFree", func(t *testing.T) {
		free := blockEntry{ptr: 0x1000, size: 0x40}
		if !free.isFree() {
			t.Error("isFree() = false for nonzero size, want true")
		}

		occupied := blockEntry{ptr: 0x1000, size: 0}
		if occupied.isFree() {
			t.Error("isFree() = true for zero size, want false")
		}
	})

	t.Run("SetOccupied", func(t *testing.T) {
		b := blockEntry{ptr: 0x1000, size: 0x40}
		b.setOccupied()

		if b.isFree() {
			t.Error("still free after setOccupied")
		}

		if b.ptr != 0x1000 {
			t.Errorf("ptr changed by setOccupied: got 0x%x, want 0x1000", b.ptr)
		}
	})
}
