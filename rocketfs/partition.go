package rocketfs

// partitionByte packs a file type and age into the single byte the
// partition table stores per block (spec §3: "(file_type << 4) | age").
func partitionByte(fileType FileType, age uint8) uint8 {
	return uint8(fileType)<<4 | (age & 0x0F)
}

func partitionFileType(b uint8) FileType { return FileType(b >> 4) }
func partitionAge(b uint8) uint8         { return b & 0x0F }

// setPartitionEntry writes a block's partition table byte and marks the
// table dirty.
func (fs *FileSystem) setPartitionEntry(id uint32, fileType FileType, age uint8) {
	fs.partitionTable[id] = partitionByte(fileType, age)
	fs.partitionTableModified = true
}

// Format erases and reinitialises the superblock and partition table
// (spec §4.2). It does not touch data blocks directly; any existing
// chains become unreachable once their owning partition entries are
// cleared.
func (fs *FileSystem) Format() error {
	if err := fs.ready(); err != nil {
		return err
	}

	if err := fs.writeSuperblockMagic(); err != nil {
		return err
	}

	table := make([]uint8, fs.numBlocks)
	for i := uint32(0); i < numProtectedBlocks; i++ {
		table[i] = partitionByte(Empty, ageReserved)
	}
	fs.partitionTable = table
	fs.totalUsedBlocks = 0
	for i := range fs.successor {
		fs.successor[i] = 0
		fs.predecessor[i] = 0
		fs.owner[i] = noOwner
	}
	fs.files = make([]File, NumFiles)
	fs.partitionTableModified = true

	if err := fs.Flush(); err != nil {
		return err
	}

	fs.mounted = true
	fs.log.Debugf("rocketfs: format complete on %q", fs.id)
	return nil
}

// writeSuperblockMagic erases block 0 and programs the canonical periodic
// magic into its first 8 bytes.
func (fs *FileSystem) writeSuperblockMagic() error {
	fs.driver.EraseSubsector(fs.blockAddress(blockSuperblock))
	buf := make([]byte, 8)
	putU64(buf, generatePeriodicMagic(fs.magicPeriod))
	fs.driver.Write(fs.blockAddress(blockSuperblock), buf)
	return nil
}

// Mount reads the superblock and partition table from flash and rebuilds
// the in-RAM chain/directory state by scanning every data block (spec
// §4.2, §4.4). If the superblock magic is unrecognisable, it attempts
// backup-slot recovery before reformatting.
func (fs *FileSystem) Mount() error {
	if err := fs.ready(); err != nil {
		return err
	}

	buf := make([]byte, 8)
	fs.driver.Read(fs.blockAddress(blockSuperblock), buf)
	magic := getU64(buf)

	if periodicMagicMatch(fs.magicPeriod, fs.corruptionThreshold, magic) {
		if err := fs.loadPartitionTable(blockMasterPartition); err != nil {
			return err
		}
	} else {
		fs.log.Warnf("rocketfs: superblock magic unrecognisable on %q, attempting recovery", fs.id)
		if !fs.recoverSuperblock() {
			fs.log.Warnf("rocketfs: superblock recovery failed on %q, reformatting", fs.id)
			return fs.Format()
		}
	}

	if err := fs.initBlockManagement(); err != nil {
		return err
	}

	fs.mounted = true
	fs.log.Debugf("rocketfs: mount complete on %q, totalUsedBlocks=%d", fs.id, fs.totalUsedBlocks)
	return nil
}

// loadPartitionTable reads the N-byte partition table from blockID,
// inverting every byte (flash stores it bitwise-NOT so "free" reads back
// as 0x00 in RAM, spec §3).
func (fs *FileSystem) loadPartitionTable(blockID uint32) error {
	raw := make([]byte, fs.numBlocks)
	fs.driver.Read(fs.blockAddress(blockID), raw)
	table := make([]uint8, fs.numBlocks)
	used := uint32(0)
	for i, b := range raw {
		table[i] = ^b
		if table[i] != 0 {
			used++
		}
	}
	fs.partitionTable = table
	fs.totalUsedBlocks = used
	fs.partitionTableModified = false
	return nil
}

// recoverSuperblock looks for a partition table mirror that still bears
// the protected-block signature (spec §9: backup-slot recovery is left an
// open interface by the original; this is the policy decision recorded in
// DESIGN.md). The canonical magic itself never needs recovering from a
// backup because it is fully determined by magicPeriod: once a plausible
// table is found, it is adopted and the magic is simply regenerated.
func (fs *FileSystem) recoverSuperblock() bool {
	candidates := append([]uint32{blockMasterPartition}, backupPartitionBlocks[:]...)
	for _, blockID := range candidates {
		raw := make([]byte, fs.numBlocks)
		fs.driver.Read(fs.blockAddress(blockID), raw)
		if looksLikePartitionTable(raw) {
			if err := fs.loadPartitionTable(blockID); err != nil {
				continue
			}
			if err := fs.writeSuperblockMagic(); err != nil {
				continue
			}
			fs.log.Warnf("rocketfs: recovered partition table from block %d on %q", blockID, fs.id)
			return true
		}
	}
	return false
}

// looksLikePartitionTable is a cheap sanity check: the 8 protected slots
// must read back (after inversion) as the fixed reserved byte every
// format() writes.
func looksLikePartitionTable(raw []byte) bool {
	if len(raw) < int(numProtectedBlocks) {
		return false
	}
	want := ^partitionByte(Empty, ageReserved)
	for i := uint32(0); i < numProtectedBlocks; i++ {
		if raw[i] != want {
			return false
		}
	}
	return true
}

// Flush writes the in-RAM partition table back to its master slot and
// mirrors it to the recovery and backup slots (spec §3, §4.2). It is a
// no-op when the table hasn't been modified since the last flush.
func (fs *FileSystem) Flush() error {
	if err := fs.ready(); err != nil {
		return err
	}
	if !fs.partitionTableModified {
		return nil
	}

	raw := make([]byte, fs.numBlocks)
	for i, b := range fs.partitionTable {
		raw[i] = ^b
	}

	targets := append([]uint32{blockMasterPartition}, backupPartitionBlocks[:]...)
	for _, blockID := range targets {
		fs.driver.EraseSubsector(fs.blockAddress(blockID))
		fs.driver.Write(fs.blockAddress(blockID), raw)
	}

	fs.partitionTableModified = false
	fs.log.Debugf("rocketfs: flushed partition table on %q", fs.id)
	return nil
}

// Unmount flushes the partition table and clears in-RAM mount state.
func (fs *FileSystem) Unmount() error {
	if !fs.mounted {
		return ErrNotMounted
	}
	if err := fs.Flush(); err != nil {
		return err
	}
	fs.mounted = false
	return nil
}

// maybeDecayAges decrements by one every age in the table that is neither
// 0 nor the reserved sentinel (spec §4.3: "Ages saturate at 0...
// long-lived untouched blocks drift toward 0 as the drive fills"). The
// anchor (block 0) keeps the reserved age, so the check reduces to the
// fill level: nothing decays while fewer than an eighth of the blocks are
// in use, and every call decays once at least that many are. It is
// invoked after each allocation of a previously-free block; reclamations
// reseed rather than decay.
func (fs *FileSystem) maybeDecayAges() {
	floor := 16 - int(fs.totalUsedBlocks)*16/int(fs.numBlocks)
	anchor := int(partitionAge(fs.partitionTable[blockSuperblock]))
	if anchor-1 < floor {
		return
	}
	for i, b := range fs.partitionTable {
		age := partitionAge(b)
		if age > 0 && age != ageReserved {
			fs.partitionTable[i] = (b &^ 0x0F) | (age - 1)
		}
	}
	fs.partitionTableModified = true
}
