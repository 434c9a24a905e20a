package rocketfs

import "testing"

func TestBlockHeaderRoundTrip(t *testing.T) {
	h := blockHeader{magic: blockHeaderMagic, fileID: 7, predecessor: 3, usageBitmap: 0xFFFF0000FFFF0000}
	got := blockHeaderFromBytes(h.toBytes())
	if got != h {
		t.Fatalf("blockHeader round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestComputeUsedLengthAllErased(t *testing.T) {
	if got := computeUsedLength(^uint64(0), 64); got != 0 {
		t.Fatalf("fully erased bitmap should report 0 used bytes, got %d", got)
	}
}

func TestComputeUsedLengthFullyWritten(t *testing.T) {
	if got := computeUsedLength(0, 64); got != 64*64 {
		t.Fatalf("fully written bitmap should report %d used bytes, got %d", 64*64, got)
	}
}

func TestWriteMaskLeavesOtherRegionsUntouched(t *testing.T) {
	const blockSize = 256 // regionSize = 4
	mask := writeMask(16, 19, blockSize)
	// Region 4 (bytes 16-19) must be the only cleared bit.
	if mask&(1<<4) != 0 {
		t.Fatalf("writeMask should clear bit 4 for offsets [16,19], mask=%#x", mask)
	}
	for i := 0; i < 64; i++ {
		if i == 4 {
			continue
		}
		if mask&(uint64(1)<<uint(i)) == 0 {
			t.Fatalf("writeMask unexpectedly cleared unrelated bit %d, mask=%#x", i, mask)
		}
	}
}

func TestAccessGrowsChainPastBlockEnd(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("grower", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	addr := uint32(f.firstBlock)*fs.blockSize + fs.blockSize - 4
	n, err := fs.access(&addr, 16, accessWrite)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if n != 4 {
		t.Fatalf("first access should return the 4 remaining bytes in the block, got %d", n)
	}
	addr += uint32(n)

	n2, err := fs.access(&addr, 16, accessWrite)
	if err != nil {
		t.Fatalf("access after chain growth: %v", err)
	}
	if n2 <= 0 {
		t.Fatalf("access should grow the chain and return accessible bytes, got %d", n2)
	}
	newBlock := (addr - blockHeaderSize) / fs.blockSize
	if newBlock == uint32(f.firstBlock) {
		t.Fatalf("access did not actually advance into a new block")
	}
	if fs.successor[f.firstBlock] == 0 {
		t.Fatalf("growChain did not link the new block as successor")
	}
}

func TestAccessReadReturnsEOFAtChainEnd(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("reader", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	addr := uint32(f.firstBlock)*fs.blockSize + fs.blockSize
	n, err := fs.access(&addr, 16, accessRead)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if n != -1 {
		t.Fatalf("expected -1 (EOF) reading past the only block in a chain, got %d", n)
	}
}

func TestInitBlockManagementDetectsCycle(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("loopy", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	second, err := fs.growChain(uint32(f.firstBlock))
	if err != nil {
		t.Fatalf("growChain: %v", err)
	}

	// Corrupt the chain into a cycle: point the head's predecessor at its
	// own successor, so the mount-time walk loops forever without a
	// visited-set guard.
	fs.rewritePredecessor(uint32(f.firstBlock), uint16(second))
	fs.successor[f.firstBlock] = uint16(second)
	fs.successor[second] = f.firstBlock
	fs.predecessor[f.firstBlock] = uint16(second)

	if err := fs.initBlockManagement(); err != ErrChainCorrupt {
		t.Fatalf("expected ErrChainCorrupt for a cyclic chain, got %v", err)
	}
}
