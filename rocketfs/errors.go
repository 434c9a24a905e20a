package rocketfs

import "errors"

// Sentinel errors returned by the public API. The source treats most of
// these as log-and-continue conditions (see spec §7); callers that care
// about the distinction can use errors.Is.
var (
	// ErrNotConfigured is returned when an operation is attempted before
	// device() has been called with a usable geometry.
	ErrNotConfigured = errors.New("rocketfs: device not configured")
	// ErrNotBound is returned when an operation is attempted before bind()
	// has installed driver callbacks.
	ErrNotBound = errors.New("rocketfs: driver not bound")
	// ErrNotMounted is returned when a file or stream operation is
	// attempted before a successful mount.
	ErrNotMounted = errors.New("rocketfs: filesystem not mounted")
	// ErrBlockSizeTooSmall is returned by device() when capacity divided
	// by the block size leaves fewer blocks than the protected blocks, the
	// reserved tail blocks and one data block need.
	ErrBlockSizeTooSmall = errors.New("rocketfs: block size too small for block count")
	// ErrDuplicateName is returned by NewFile when a file of the same name
	// already exists.
	ErrDuplicateName = errors.New("rocketfs: duplicate filename")
	// ErrDirectoryFull is returned by NewFile when every file slot is in use.
	ErrDirectoryFull = errors.New("rocketfs: file directory full")
	// ErrFileNotFound is returned by GetFile/DelFile for an unknown name.
	ErrFileNotFound = errors.New("rocketfs: file not found")
	// ErrAllocatorExhausted is returned in the degenerate case where the
	// data region has zero usable blocks to scan (misconfiguration only;
	// under normal operation alloc() always falls back to reclamation).
	ErrAllocatorExhausted = errors.New("rocketfs: no data blocks available")
	// ErrStreamOpen is returned by Stream() when another stream already
	// borrows the filesystem (spec §4.5, §5: at most one open stream).
	ErrStreamOpen = errors.New("rocketfs: a stream is already open")
	// ErrUnsupportedFileType is returned by Stream() for any FileType other
	// than RAW (spec §9: ECC/CRC/redundancy variants are unimplemented
	// placeholders).
	ErrUnsupportedFileType = errors.New("rocketfs: file type unsupported by stream")
	// ErrChainCorrupt is returned when walking a successor chain revisits a
	// block or exceeds the device's block count in hops, the bound spec
	// §4.4/§9 requires against cyclic chains.
	ErrChainCorrupt = errors.New("rocketfs: successor chain exceeds block count, treating as corrupt")
	// ErrSuperblockCorrupt names the case where the heuristic magic match
	// fails and no backup slot recovers a plausible partition table. No
	// function in this package returns it: Mount reformats in that case.
	ErrSuperblockCorrupt = errors.New("rocketfs: superblock unrecoverable")
)
