package rocketfs

import "github.com/bits-and-blooms/bitset"

// blockHeader is the first 16 bytes of every allocated data block
// (spec §3).
type blockHeader struct {
	magic       uint32
	fileID      uint16
	predecessor uint16
	usageBitmap uint64
}

func blockHeaderFromBytes(b []byte) blockHeader {
	return blockHeader{
		magic:       getU32(b[0:4]),
		fileID:      getU16(b[4:6]),
		predecessor: getU16(b[6:8]),
		usageBitmap: getU64(b[8:16]),
	}
}

func (h blockHeader) toBytes() []byte {
	b := make([]byte, blockHeaderSize)
	putU32(b[0:4], h.magic)
	putU16(b[4:6], h.fileID)
	putU16(b[6:8], h.predecessor)
	putU64(b[8:16], h.usageBitmap)
	return b
}

func (fs *FileSystem) readBlockHeader(id uint32) blockHeader {
	buf := make([]byte, blockHeaderSize)
	fs.driver.Read(fs.blockAddress(id), buf)
	return blockHeaderFromBytes(buf)
}

// writeBlockHeader programs a freshly erased block's header: magic, owning
// file id, and predecessor link. The usage bitmap is left at its erased
// all-ones value (nothing written yet).
func (fs *FileSystem) writeBlockHeader(id uint32, fileID uint16, predecessor uint16) {
	h := blockHeader{
		magic:       blockHeaderMagic,
		fileID:      fileID,
		predecessor: predecessor,
		usageBitmap: ^uint64(0),
	}
	fs.driver.Write(fs.blockAddress(id), h.toBytes())
}

// rewritePredecessor patches a block's predecessor field to 0, safe under
// NOR semantics because every bit of the target value is 0 and flash
// program can always clear bits (spec §4.3, §9: this replaces the
// original's destructive "erase the successor" reclamation bug with a
// non-destructive header patch).
func (fs *FileSystem) rewritePredecessor(id uint32, predecessor uint16) {
	buf := make([]byte, 2)
	putU16(buf, predecessor)
	fs.driver.Write(fs.blockAddress(id)+6, buf)
}

// computeUsedLength derives a block's used payload length from its usage
// bitmap: bit i clear means the i-th B/64-byte region has been written
// (spec §4.4). This is conservative — any write inside a region counts
// the whole region as used, and because regions are sized against the
// whole block rather than the post-header payload, a region that straddles
// the end of the header (block sizes above 1024 bytes) also counts its
// header bytes once any payload byte in it is written; this matches how
// both computeUsedLength and writeMask divide the block, so the bitmap
// stays internally consistent even though it isn't a literal byte count.
func computeUsedLength(usageBitmap uint64, regionSize uint32) uint32 {
	written := ^usageBitmap
	return uint32(popcount64(written)) * regionSize
}

// usageRegionSize returns the region size implied by the block size (64
// regions per block, spec §4.4: "B/64 bytes each, 64 bytes when B=4096").
func (fs *FileSystem) usageRegionSize() uint32 {
	return fs.blockSize / usageRegions
}

// writeMask computes the bitmap program mask for a write covering payload
// offsets [begin, end] (both inclusive, relative to block base), per
// spec §4.4. Because NOR program can only clear bits, issuing this mask
// directly as a Driver.Write onto the usage bitmap field has exactly the
// effect of ANDing it into whatever regions were already marked used by
// earlier writes — no read-modify-write is required.
func writeMask(begin, end, blockSize uint32) uint64 {
	regionSize := blockSize / usageRegions
	lo := (begin % blockSize) / regionSize
	hi := (end % blockSize) / regionSize
	mask := (uint64(1) << lo) - 1
	if hi < usageRegions-1 {
		mask |= ^uint64(0) << (hi + 1)
	}
	return mask
}

// markUsageRange programs the bitmap bits covering [begin, end] (block
// base-relative offsets, both inclusive) as written, and returns how many
// bytes' worth of previously-unwritten regions this newly covers (0 if the
// whole range was already marked used by an earlier write). Regions only
// ever transition written, so this delta can be added straight onto the
// owning file's length without rescanning the whole chain.
func (fs *FileSystem) markUsageRange(blockID uint32, begin, end uint32) uint32 {
	regionSize := fs.usageRegionSize()
	before := fs.readBlockHeader(blockID).usageBitmap
	mask := writeMask(begin, end, fs.blockSize)
	after := before & mask

	buf := make([]byte, 8)
	putU64(buf, mask)
	fs.driver.Write(fs.blockAddress(blockID)+4+4, buf)

	return computeUsedLength(after, regionSize) - computeUsedLength(before, regionSize)
}

// accessMode selects read or write semantics for access().
type accessMode int

const (
	accessRead accessMode = iota
	accessWrite
)

// access translates a logical cursor into a physical one, growing the
// chain on demand for writes and signalling end-of-chain for reads (spec
// §4.4). addr is updated in place; the return value is the number of
// contiguously accessible bytes at the (possibly advanced) address, or -1
// on read EOF. In the last block of a chain, reads stop at the end of the
// written data as derived from that block's usage bitmap.
func (fs *FileSystem) access(addr *uint32, length uint32, mode accessMode) (int32, error) {
	off := 1 + (*addr-1)%fs.blockSize
	blockID := (*addr - off) / fs.blockSize

	if off < blockHeaderSize {
		*addr = blockID*fs.blockSize + blockHeaderSize
		off = blockHeaderSize
	}

	if off == fs.blockSize {
		succ := fs.successor[blockID]
		switch {
		case succ != 0:
			blockID = uint32(succ)
			*addr = blockID*fs.blockSize + blockHeaderSize
			off = blockHeaderSize
		case mode == accessRead:
			return -1, nil
		default:
			newID, err := fs.growChain(blockID)
			if err != nil {
				return 0, err
			}
			blockID = newID
			*addr = blockID*fs.blockSize + blockHeaderSize
			off = blockHeaderSize
		}
	}

	readable := fs.blockSize - off
	if mode == accessRead && fs.successor[blockID] == 0 {
		header := fs.readBlockHeader(blockID)
		end := blockHeaderSize + computeUsedLength(header.usageBitmap, fs.usageRegionSize())
		if off >= end {
			return -1, nil
		}
		readable = end - off
	}
	if length < readable {
		readable = length
	}

	if mode == accessWrite {
		delta := fs.markUsageRange(blockID, off, off+readable-1)
		if owner := fs.owner[blockID]; owner != noOwner {
			fs.files[owner].length += delta
		}
	}

	return int32(readable), nil
}

// growChain allocates a new block, links it after current, and updates
// the owning file's bookkeeping (spec §4.4 WRITE-past-end branch).
func (fs *FileSystem) growChain(current uint32) (uint32, error) {
	header := fs.readBlockHeader(current)
	fileID := header.fileID

	newID, err := fs.alloc(fs.files[fileID].fileType)
	if err != nil {
		return 0, err
	}

	fs.writeBlockHeader(newID, fileID, uint16(current))
	fs.successor[current] = uint16(newID)
	fs.predecessor[newID] = uint16(current)
	fs.owner[newID] = fileID

	f := &fs.files[fileID]
	f.usedBlocks++
	f.lastBlock = uint16(newID)

	return newID, nil
}

// initBlockManagement rebuilds the successor table and file directory by
// scanning every allocated block's header, then walks every chain to
// compute lengths and used-block counts (spec §4.4 "Mount-time
// reconstruction").
func (fs *FileSystem) initBlockManagement() error {
	for id := fs.firstDataBlock(); id < fs.lastDataBlock(); id++ {
		if fs.partitionTable[id] == 0 {
			continue
		}
		header := fs.readBlockHeader(id)
		if header.magic != blockHeaderMagic {
			fs.log.Warnf("rocketfs: block %d has invalid magic %x, skipping until reclaimed", id, header.magic)
			continue
		}

		fs.owner[id] = header.fileID

		if header.predecessor == 0 {
			name := fs.readHeadFilename(id)
			f := &fs.files[header.fileID]
			f.id = header.fileID
			f.name = name
			f.hash = hashFilename(name)
			f.fileType = partitionFileType(fs.partitionTable[id])
			f.firstBlock = uint16(id)
			f.usedBlocks = 1
			f.length = computeUsedLength(header.usageBitmap, fs.usageRegionSize())
			f.lastBlock = uint16(id)
		} else {
			fs.successor[header.predecessor] = uint16(id)
			fs.predecessor[id] = header.predecessor
		}
	}

	visited := bitset.New(uint(fs.numBlocks))
	for fileID := range fs.files {
		f := &fs.files[fileID]
		if f.firstBlock == 0 {
			continue
		}
		visited.ClearAll()
		visited.Set(uint(f.firstBlock))

		current := f.firstBlock
		hops := uint32(0)
		for {
			succ := fs.successor[current]
			if succ == 0 {
				break
			}
			hops++
			if hops > fs.numBlocks || visited.Test(uint(succ)) {
				fs.log.Warnf("rocketfs: file %d chain exceeds block bound or cycles, isolating at block %d", fileID, current)
				return ErrChainCorrupt
			}
			visited.Set(uint(succ))

			header := fs.readBlockHeader(uint32(succ))
			f.length += computeUsedLength(header.usageBitmap, fs.usageRegionSize())
			f.usedBlocks++
			f.lastBlock = succ

			current = succ
		}
	}

	return nil
}

// readHeadFilename reads the 16-byte filename stored at the start of a
// chain head's payload (spec §4.4).
func (fs *FileSystem) readHeadFilename(id uint32) string {
	buf := make([]byte, filenameFieldSize)
	fs.driver.Read(fs.blockAddress(id)+blockHeaderSize, buf)
	return trimFilename(buf)
}
