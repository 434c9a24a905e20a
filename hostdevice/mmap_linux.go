//go:build linux

package hostdevice

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile is a Driver backed by a memory-mapped flash-image file, for
// hosts that want RocketFS's page-cache-backed reads/writes to skip the
// read()/write() syscall per 4 KiB block that File pays on every access.
// It enforces the same NOR AND-on-write / all-ones-on-erase semantics as
// RAM and File.
type MmapFile struct {
	f         *os.File
	data      []byte
	blockSize uint32
}

// OpenMmapFile opens (creating if necessary) a flash-image file of the
// given capacity and block size and maps it into this process's address
// space.
func OpenMmapFile(path string, capacity, blockSize uint32) (*MmapFile, error) {
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("hostdevice: open %s: %w", path, err)
	}

	if fresh {
		if err := f.Truncate(int64(capacity)); err != nil {
			f.Close()
			return nil, fmt.Errorf("hostdevice: truncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hostdevice: mmap %s: %w", path, err)
	}

	if fresh {
		for i := range data {
			data[i] = 0xFF
		}
		if err := unix.Msync(data, unix.MS_SYNC); err != nil {
			unix.Munmap(data)
			f.Close()
			return nil, fmt.Errorf("hostdevice: initial msync %s: %w", path, err)
		}
	}

	return &MmapFile{f: f, data: data, blockSize: blockSize}, nil
}

func (d *MmapFile) Read(addr uint32, buf []byte) {
	copy(buf, d.data[addr:int(addr)+len(buf)])
}

func (d *MmapFile) Write(addr uint32, buf []byte) {
	for i, b := range buf {
		d.data[int(addr)+i] &= b
	}
	_ = unix.Msync(d.data[addr:int(addr)+len(buf)], unix.MS_ASYNC)
}

func (d *MmapFile) EraseSubsector(addr uint32) {
	base := (addr / d.blockSize) * d.blockSize
	for i := uint32(0); i < d.blockSize; i++ {
		d.data[base+i] = 0xFF
	}
	_ = unix.Msync(d.data[base:base+d.blockSize], unix.MS_ASYNC)
}

// Close flushes and unmaps the backing file.
func (d *MmapFile) Close() error {
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := unix.Munmap(d.data); err != nil {
		return err
	}
	return d.f.Close()
}
