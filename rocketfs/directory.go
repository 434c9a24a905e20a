package rocketfs

const (
	// filenameFieldSize is the on-disk width of a filename (spec §3: "≤15
	// chars, null-padded" into a 16-byte field, also the size of the
	// payload prefix a chain head stores its name in, spec §4.4).
	filenameFieldSize = 16
	// filenameMaxChars is the usable character budget, one byte short of
	// filenameFieldSize to guarantee a null terminator.
	filenameMaxChars = filenameFieldSize - 1
)

// padFilename truncates name to filenameMaxChars and null-pads it to
// filenameFieldSize bytes, matching the original's filename_copy.
func padFilename(name string) [filenameFieldSize]byte {
	var b [filenameFieldSize]byte
	n := len(name)
	if n > filenameMaxChars {
		n = filenameMaxChars
	}
	copy(b[:], name[:n])
	return b
}

// trimFilename recovers the string stored in a null-padded filename
// field.
func trimFilename(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// hashFilename computes the 32-bit directory hash. Per spec §9, the
// source showed two incompatible formulas (a 37/59 polynomial in
// block_management.c versus the JDK String.hashCode() form in file.c);
// this implementation standardises on the JDK form since it is the one
// the dedicated hashing unit (file.c) commits to: seed 13, multiplier 31,
// over all 16 padded bytes including null padding.
func hashFilename(name string) uint32 {
	padded := padFilename(name)
	hash := uint32(13)
	for _, c := range padded {
		hash = 31*hash + uint32(c)
	}
	return hash
}

func (fs *FileSystem) mountedReady() error {
	if err := fs.ready(); err != nil {
		return err
	}
	if !fs.mounted {
		return ErrNotMounted
	}
	return nil
}

// NewFile creates a file record and allocates its chain head block
// (spec §4.6). It fails if a file of the same name already exists or the
// directory is full.
func (fs *FileSystem) NewFile(name string, fileType FileType) (*File, error) {
	if err := fs.mountedReady(); err != nil {
		return nil, err
	}
	padded := padFilename(name)
	trimmed := trimFilename(padded[:])
	hash := hashFilename(trimmed)
	start := hash % NumFiles

	for i := uint32(0); i < NumFiles; i++ {
		idx := (start + i) % NumFiles
		f := &fs.files[idx]
		if f.firstBlock != 0 {
			if f.name == trimmed {
				return nil, ErrDuplicateName
			}
			continue
		}

		blockID, err := fs.alloc(fileType)
		if err != nil {
			return nil, err
		}
		fs.writeBlockHeader(blockID, uint16(idx), 0)
		fs.driver.Write(fs.blockAddress(blockID)+blockHeaderSize, padded[:])
		// Mark the filename prefix as used so APPEND's used-length cursor
		// continues past it instead of starting a write back over the name.
		nameUsed := fs.markUsageRange(blockID, blockHeaderSize, blockHeaderSize+filenameFieldSize-1)
		fs.owner[blockID] = uint16(idx)

		*f = File{
			id:         uint16(idx),
			name:       trimmed,
			fileType:   fileType,
			hash:       hash,
			firstBlock: uint16(blockID),
			lastBlock:  uint16(blockID),
			length:     nameUsed,
			usedBlocks: 1,
		}
		fs.log.Debugf("rocketfs: created file %q (id=%d) head=%d", trimmed, idx, blockID)
		return f, nil
	}

	return nil, ErrDirectoryFull
}

// GetFile looks up a file by name using the same linear probe as NewFile,
// scanning every slot rather than stopping at the first empty one so that
// a deletion elsewhere in the probe sequence can't hide a later entry.
func (fs *FileSystem) GetFile(name string) (*File, error) {
	if err := fs.mountedReady(); err != nil {
		return nil, err
	}
	padded := padFilename(name)
	trimmed := trimFilename(padded[:])
	hash := hashFilename(trimmed)
	start := hash % NumFiles

	for i := uint32(0); i < NumFiles; i++ {
		idx := (start + i) % NumFiles
		f := &fs.files[idx]
		if f.firstBlock == 0 {
			continue
		}
		if f.name == trimmed {
			return f, nil
		}
	}
	return nil, ErrFileNotFound
}

// DelFile frees every block in file's chain and clears its directory slot
// (spec §4.6).
func (fs *FileSystem) DelFile(f *File) error {
	if err := fs.mountedReady(); err != nil {
		return err
	}
	if f == nil {
		return ErrFileNotFound
	}

	current := f.firstBlock
	for current != 0 {
		next := fs.successor[current]
		fs.free(uint32(current))
		current = next
	}

	fs.log.Debugf("rocketfs: deleted file %q (id=%d)", f.name, f.id)
	*f = File{}
	return nil
}
