package hostdevice

import (
	"fmt"
	"os"

	times "gopkg.in/djherbis/times.v1"
)

// File is a Driver backed by a regular file holding a flash image,
// intended for desktop development against RocketFS without real NOR
// hardware. Like RAM, it enforces NOR program/erase semantics in
// software so a misbehaving core (or a corrupted image) fails the same
// way it would against a real device.
type File struct {
	f         *os.File
	blockSize uint32
}

// OpenFile opens (creating if necessary) a flash-image file of the given
// capacity and block size. A freshly created image starts fully erased
// (all-ones), matching virgin NOR flash.
func OpenFile(path string, capacity, blockSize uint32) (*File, error) {
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("hostdevice: open %s: %w", path, err)
	}

	if fresh {
		erased := make([]byte, capacity)
		for i := range erased {
			erased[i] = 0xFF
		}
		if _, err := f.WriteAt(erased, 0); err != nil {
			return nil, fmt.Errorf("hostdevice: initialise %s: %w", path, err)
		}
	}

	return &File{f: f, blockSize: blockSize}, nil
}

// Stat reports the backing image file's recorded times, useful for
// logging how long ago a flash image was last touched before this mount.
func (d *File) Stat() (times.Timespec, error) {
	return times.Stat(d.f.Name())
}

func (d *File) Read(addr uint32, buf []byte) {
	if _, err := d.f.ReadAt(buf, int64(addr)); err != nil {
		panic(fmt.Sprintf("hostdevice: read at %d: %v", addr, err))
	}
}

func (d *File) Write(addr uint32, buf []byte) {
	existing := make([]byte, len(buf))
	if _, err := d.f.ReadAt(existing, int64(addr)); err != nil {
		panic(fmt.Sprintf("hostdevice: write read-back at %d: %v", addr, err))
	}
	for i, b := range buf {
		existing[i] &= b
	}
	if _, err := d.f.WriteAt(existing, int64(addr)); err != nil {
		panic(fmt.Sprintf("hostdevice: write at %d: %v", addr, err))
	}
}

func (d *File) EraseSubsector(addr uint32) {
	base := (addr / d.blockSize) * d.blockSize
	erased := make([]byte, d.blockSize)
	for i := range erased {
		erased[i] = 0xFF
	}
	if _, err := d.f.WriteAt(erased, int64(base)); err != nil {
		panic(fmt.Sprintf("hostdevice: erase at %d: %v", base, err))
	}
}

// Close closes the backing file.
func (d *File) Close() error {
	return d.f.Close()
}
