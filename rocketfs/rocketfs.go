// Package rocketfs implements a small log-structured filesystem for raw
// NOR flash memory, designed for resource-constrained microcontrollers
// (spec §1). It persists a modest number of append-friendly files across
// power loss using only a device's read/program/erase-subsector
// primitives, respecting NOR's 1->0-only program asymmetry.
//
// The filesystem instance is single-threaded and non-reentrant: callers
// must not invoke it from within a Driver callback, and at most one
// Stream may be open at a time (spec §5).
package rocketfs

import "fmt"

// FileType identifies the encoding strategy a file was created with. Only
// Raw is implemented; the others are on-disk-compatible placeholders
// carried over from the original source for a future ECC/CRC/redundancy
// strategy (spec §9).
type FileType uint8

const (
	Empty FileType = iota
	Raw
	ECC
	CRC
	LowRedundance
	HighRedundance
	FourierRedundance
)

const (
	// DefaultBlockSize is the canonical NOR subsector size (spec §3).
	DefaultBlockSize uint32 = 4096
	// DefaultNumBlocks is the canonical block count (spec §3).
	DefaultNumBlocks uint32 = 4096
	// NumFiles is the size of the fixed file directory array (spec §3).
	NumFiles = 64
	// numProtectedBlocks is the count of low blocks reserved for metadata
	// (superblock, partition table and its mirrors, journal).
	numProtectedBlocks uint32 = 8
	// numReservedTailBlocks is the count of high blocks reserved for
	// future use (spec §3: "the last 4 are reserved").
	numReservedTailBlocks uint32 = 4

	// blockHeaderSize is the size in bytes of every allocated data
	// block's header (spec §3).
	blockHeaderSize uint32 = 16
	// blockHeaderMagic identifies an allocated data block.
	blockHeaderMagic uint32 = 0xC0FFEE42
	// usageRegions is the number of regions the usage bitmap tracks per
	// block; each region is blockSize/64 bytes (64 bytes when the block
	// size is 4096), counted from the start of the block.
	usageRegions = 64

	// ageSeed is the age a block is reseeded to on (re)allocation.
	ageSeed uint8 = 12
	// ageReserved is the sentinel age for the 8 protected blocks.
	ageReserved uint8 = 0xF
	// ageMax is the largest representable age (4 bits).
	ageMax uint8 = 0xF

	// blockSuperblock, blockMasterPartition, blockRecoveryPartition are
	// the fixed roles of the first protected blocks (spec §3).
	blockSuperblock        uint32 = 0
	blockMasterPartition   uint32 = 1
	blockRecoveryPartition uint32 = 2
	// backup slots occupy blocks 3-6; block 7 is reserved for a future
	// journal and is never written by this implementation.
	blockJournal uint32 = 7
)

// backupPartitionBlocks lists every block that mirrors the master
// partition table (recovery copy plus four backup slots).
var backupPartitionBlocks = [5]uint32{
	blockRecoveryPartition, 3, 4, 5, 6,
}

// File is a directory entry: one slot per file id in the fixed-size
// directory (spec §3).
type File struct {
	id         uint16
	name       string
	fileType   FileType
	hash       uint32
	firstBlock uint16
	lastBlock  uint16
	length     uint32
	usedBlocks uint16
}

// ID returns the file's slot index in the directory, which doubles as its
// on-disk file id.
func (f *File) ID() uint16 { return f.id }

// Name returns the (already truncated/padded) filename.
func (f *File) Name() string { return f.name }

// Type returns the FileType the file was created with.
func (f *File) Type() FileType { return f.fileType }

// Length returns the file's length in bytes, as derived from the usage
// bitmaps of every block in its chain (spec §3, §4.4).
func (f *File) Length() uint32 { return f.length }

// UsedBlocks returns the number of blocks in the file's chain.
func (f *File) UsedBlocks() uint16 { return f.usedBlocks }

// FileSystem is a RocketFS instance. Zero value is not usable: call
// Device and Bind (and optionally Debug) before Mount or Format.
type FileSystem struct {
	log Logger

	deviceConfigured bool
	driverBound      bool
	mounted          bool

	id                  string
	addressableSpace    uint32
	blockSize           uint32
	numBlocks           uint32
	magicPeriod         uint8
	corruptionThreshold int

	driver Driver

	partitionTable         []uint8
	partitionTableModified bool
	totalUsedBlocks        uint32

	successor   []uint16
	predecessor []uint16
	owner       []uint16

	files []File

	streamOpen bool
}

const noOwner = 0xFFFF

// New constructs an unconfigured FileSystem. Call Device and Bind before
// Mount or Format.
func New() *FileSystem {
	return &FileSystem{
		log:                 discardLogger{},
		magicPeriod:         defaultMagicPeriod,
		corruptionThreshold: defaultCorruptionThreshold,
	}
}

// Debug attaches a log sink (spec §6: debug(fs, logger)). A nil logger
// installs a discard sink.
func (fs *FileSystem) Debug(logger Logger) {
	if logger == nil {
		fs.log = discardLogger{}
		return
	}
	fs.log = logger
}

// Device configures the filesystem's geometry (spec §6: device(fs, id,
// capacity, block_size)). If id is empty, a UUID is minted so every log
// line from this instance carries a stable correlation id even when the
// host didn't supply a serial.
func (fs *FileSystem) Device(id string, capacity, blockSize uint32) error {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	numBlocks := capacity / blockSize
	if numBlocks < numProtectedBlocks+numReservedTailBlocks+1 {
		fs.log.Warnf("rocketfs: block size %d too small to index required blocks for capacity %d", blockSize, capacity)
		return ErrBlockSizeTooSmall
	}
	if id == "" {
		id = newDeviceSerial()
	}

	fs.id = id
	fs.addressableSpace = capacity
	fs.blockSize = blockSize
	fs.numBlocks = numBlocks
	fs.deviceConfigured = true

	fs.partitionTable = make([]uint8, numBlocks)
	fs.successor = make([]uint16, numBlocks)
	fs.predecessor = make([]uint16, numBlocks)
	fs.owner = make([]uint16, numBlocks)
	for i := range fs.owner {
		fs.owner[i] = noOwner
	}
	fs.files = make([]File, NumFiles)

	fs.log.Debugf("rocketfs: device %q configured, capacity=%d blockSize=%d numBlocks=%d", fs.id, capacity, blockSize, numBlocks)
	return nil
}

// Bind installs the driver callbacks (spec §6: bind(fs, read, write,
// erase_block)).
func (fs *FileSystem) Bind(driver Driver) error {
	if driver == nil {
		return ErrNotBound
	}
	fs.driver = driver
	fs.driverBound = true
	return nil
}

func (fs *FileSystem) ready() error {
	if !fs.deviceConfigured {
		return ErrNotConfigured
	}
	if !fs.driverBound {
		return ErrNotBound
	}
	return nil
}

// blockAddress returns the byte address of the start of block id.
func (fs *FileSystem) blockAddress(id uint32) uint32 {
	return id * fs.blockSize
}

// firstDataBlock and lastDataBlock (exclusive) bound the allocatable data
// region (spec §3: "data blocks occupy indices [8, N-4)").
func (fs *FileSystem) firstDataBlock() uint32 { return numProtectedBlocks }
func (fs *FileSystem) lastDataBlock() uint32  { return fs.numBlocks - numReservedTailBlocks }

func (fs *FileSystem) String() string {
	return fmt.Sprintf("rocketfs(id=%s, blocks=%d, blockSize=%d)", fs.id, fs.numBlocks, fs.blockSize)
}
