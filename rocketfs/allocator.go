package rocketfs

// alloc returns a free block, or reclaims the oldest block if the data
// region is exhausted (spec §4.3). It never fails on a well-formed
// filesystem with at least one data block: a full drive silently loses
// the reclaimed block's former owner's trailing data, which is accepted
// for the ring-buffer telemetry use case (spec §7).
func (fs *FileSystem) alloc(fileType FileType) (uint32, error) {
	var oldestID uint32
	oldestAge := ageMax + 1
	found := false

	for id := fs.firstDataBlock(); id < fs.lastDataBlock(); id++ {
		b := fs.partitionTable[id]
		if b == 0 {
			fs.setPartitionEntry(id, fileType, ageSeed)
			fs.successor[id] = 0
			fs.predecessor[id] = 0
			fs.owner[id] = noOwner
			fs.driver.EraseSubsector(fs.blockAddress(id))
			fs.totalUsedBlocks++
			fs.maybeDecayAges()
			return id, nil
		}
		age := partitionAge(b)
		if age < oldestAge {
			oldestAge = age
			oldestID = id
			found = true
		}
	}

	if !found {
		return 0, ErrAllocatorExhausted
	}
	return fs.reclaim(oldestID, fileType)
}

// reclaim evicts the oldest block to satisfy an allocation when the data
// region is full (spec §4.3 step 3). The original source has two latent
// bugs here (an uninitialised predecessor variable, and erasing the
// reclaimed block's successor to patch its predecessor field, which
// destroys that block's unrelated payload); spec §9 asks for either
// whole-chain eviction or a tombstone instead. This implements the
// tombstone: the successor, if any, becomes an orphaned new chain head
// via a non-destructive header patch (see rewritePredecessor), and the
// evicted owner's bookkeeping is decremented rather than the whole file
// being torn down.
func (fs *FileSystem) reclaim(id uint32, newType FileType) (uint32, error) {
	ownerID := fs.owner[id]
	succ := fs.successor[id]
	evictedLength := computeUsedLength(fs.readBlockHeader(id).usageBitmap, fs.usageRegionSize())

	if succ != 0 {
		fs.rewritePredecessor(uint32(succ), 0)
		fs.predecessor[succ] = 0
		if ownerID != noOwner {
			fs.owner[succ] = ownerID
		}
	}

	if ownerID != noOwner {
		f := &fs.files[ownerID]
		if f.usedBlocks > 0 {
			f.usedBlocks--
		}
		if f.length >= evictedLength {
			f.length -= evictedLength
		} else {
			f.length = 0
		}
		if f.firstBlock == uint16(id) {
			f.firstBlock = succ
			if succ == 0 {
				f.lastBlock = 0
			}
		}
	}

	fs.setPartitionEntry(id, newType, ageSeed)
	fs.successor[id] = 0
	fs.predecessor[id] = 0
	fs.owner[id] = noOwner
	fs.driver.EraseSubsector(fs.blockAddress(id))

	fs.log.Warnf("rocketfs: reclaimed oldest block %d (was owned by file %d) for new allocation", id, ownerID)
	return id, nil
}

// free releases a data block back to the pool (spec §4.3: "only permitted
// for block_id >= 8").
func (fs *FileSystem) free(id uint32) {
	if id < numProtectedBlocks {
		return
	}
	fs.partitionTable[id] = 0
	fs.partitionTableModified = true
	if fs.totalUsedBlocks > 0 {
		fs.totalUsedBlocks--
	}
	fs.successor[id] = 0
	fs.predecessor[id] = 0
	fs.owner[id] = noOwner
}
