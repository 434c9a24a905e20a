package rocketfs

// StreamMode selects how a Stream's initial cursor is positioned
// (spec §4.5).
type StreamMode int

const (
	// Overwrite starts the cursor at the head block's first data byte, just
	// past the 16-byte filename stored at the start of its payload. The
	// name is inherited from the original source but is honest only in a
	// narrow sense: NOR cannot rewrite without erasing, so writing into an
	// already-written region only clears bits that are still 1 there
	// (spec §9).
	Overwrite StreamMode = iota
	// Append starts the cursor just past the file's current end, derived
	// from the last block's usage bitmap.
	Append
)

// Stream is a stateful cursor over a file's chain, translating typed
// reads/writes into access() calls that grow the chain on demand
// (spec §4.5). RocketFS allows at most one open Stream per FileSystem at
// a time (spec §5): OpenStream checks a per-FileSystem flag at run time
// and returns ErrStreamOpen while another Stream is open. The cursor lives
// in the Stream value itself rather than in module-level state.
type Stream struct {
	fs     *FileSystem
	file   *File
	cursor uint32
	eof    bool
	closed bool
}

// OpenStream binds a Stream to file in the given mode (spec §6:
// stream(s, fs, file, mode)). Only Raw files are supported; ECC/CRC/
// redundancy variants are on-disk-compatible placeholders with no stream
// strategy implemented yet (spec §9).
func (fs *FileSystem) OpenStream(file *File, mode StreamMode) (*Stream, error) {
	if err := fs.mountedReady(); err != nil {
		return nil, err
	}
	if file == nil || file.firstBlock == 0 {
		return nil, ErrFileNotFound
	}
	if file.fileType != Raw {
		fs.log.Warnf("rocketfs: file type unsupported by stream for file %q", file.name)
		return nil, ErrUnsupportedFileType
	}
	if fs.streamOpen {
		fs.log.Warnf("rocketfs: refused to open a second stream while %q is open", file.name)
		return nil, ErrStreamOpen
	}

	var cursor uint32
	switch mode {
	case Overwrite:
		// The head block's payload base is past its reserved 16-byte
		// filename prefix (spec §4.6 programs the name there at
		// creation, and NewFile marks that range used); starting here
		// rather than at byte 16 keeps OVERWRITE from clobbering the
		// name on the very first write to a fresh file.
		cursor = uint32(file.firstBlock)*fs.blockSize + blockHeaderSize + filenameFieldSize
	case Append:
		header := fs.readBlockHeader(uint32(file.lastBlock))
		used := computeUsedLength(header.usageBitmap, fs.usageRegionSize())
		cursor = uint32(file.lastBlock)*fs.blockSize + blockHeaderSize + used
	default:
		return nil, ErrUnsupportedFileType
	}

	fs.streamOpen = true
	return &Stream{fs: fs, file: file, cursor: cursor}, nil
}

// EOF reports whether the most recent Read hit the end of the file's
// chain.
func (s *Stream) EOF() bool { return s.eof }

// Read reads up to len(buf) bytes, looping on the access mapper until
// satisfied or the end of the written data in the chain's last block. On
// EOF it returns the partial count read and sets EOF().
func (s *Stream) Read(buf []byte) (int, error) {
	index := 0
	for index < len(buf) {
		readable, err := s.fs.access(&s.cursor, uint32(len(buf)-index), accessRead)
		if err != nil {
			return index, err
		}
		if readable < 0 {
			s.eof = true
			return index, nil
		}
		s.eof = false
		s.fs.driver.Read(s.cursor, buf[index:index+int(readable)])
		index += int(readable)
		s.cursor += uint32(readable)
	}
	return index, nil
}

// Write writes len(buf) bytes, looping on the access mapper and growing
// the chain as needed. There is no write-error path other than the
// device-driver contract; writes only ever truncate at a block boundary
// and continue into the next (possibly newly allocated) block.
func (s *Stream) Write(buf []byte) (int, error) {
	index := 0
	for index < len(buf) {
		writable, err := s.fs.access(&s.cursor, uint32(len(buf)-index), accessWrite)
		if err != nil {
			return index, err
		}
		if writable <= 0 {
			return index, nil
		}
		s.fs.driver.Write(s.cursor, buf[index:index+int(writable)])
		index += int(writable)
		s.cursor += uint32(writable)
	}
	return index, nil
}

func (s *Stream) ReadU8() (uint8, error) {
	var b [1]byte
	_, err := s.Read(b[:])
	return b[0], err
}

func (s *Stream) ReadU16() (uint16, error) {
	var b [2]byte
	_, err := s.Read(b[:])
	return getU16(b[:]), err
}

func (s *Stream) ReadU32() (uint32, error) {
	var b [4]byte
	_, err := s.Read(b[:])
	return getU32(b[:]), err
}

func (s *Stream) ReadU64() (uint64, error) {
	var b [8]byte
	_, err := s.Read(b[:])
	return getU64(b[:]), err
}

func (s *Stream) WriteU8(v uint8) error {
	_, err := s.Write([]byte{v})
	return err
}

func (s *Stream) WriteU16(v uint16) error {
	var b [2]byte
	putU16(b[:], v)
	_, err := s.Write(b[:])
	return err
}

func (s *Stream) WriteU32(v uint32) error {
	var b [4]byte
	putU32(b[:], v)
	_, err := s.Write(b[:])
	return err
}

func (s *Stream) WriteU64(v uint64) error {
	var b [8]byte
	putU64(b[:], v)
	_, err := s.Write(b[:])
	return err
}

// Close flushes the partition table (so the age/type bytes of any blocks
// allocated during this stream's lifetime are persisted) and releases the
// filesystem for the next stream (spec §4.5).
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.fs.streamOpen = false
	return s.fs.Flush()
}
