package rocketfs

import "testing"

// fakeDriver is a minimal in-package NOR emulator for white-box tests that
// need access to unexported FileSystem internals. It mirrors
// hostdevice.RAM's semantics without importing across the module boundary.
type fakeDriver struct {
	data      []byte
	blockSize uint32
}

func newFakeDriver(capacity, blockSize uint32) *fakeDriver {
	data := make([]byte, capacity)
	for i := range data {
		data[i] = 0xFF
	}
	return &fakeDriver{data: data, blockSize: blockSize}
}

func (d *fakeDriver) Read(addr uint32, buf []byte) {
	copy(buf, d.data[addr:int(addr)+len(buf)])
}

func (d *fakeDriver) Write(addr uint32, buf []byte) {
	for i, b := range buf {
		d.data[int(addr)+i] &= b
	}
}

func (d *fakeDriver) EraseSubsector(addr uint32) {
	base := (addr / d.blockSize) * d.blockSize
	for i := uint32(0); i < d.blockSize; i++ {
		d.data[base+i] = 0xFF
	}
}

const (
	internalTestBlockSize = 256
	internalTestNumBlocks = 32
	internalTestCapacity  = internalTestBlockSize * internalTestNumBlocks
)

func newTestRAM() *fakeDriver {
	return newFakeDriver(internalTestCapacity, internalTestBlockSize)
}

func newDirectoryTestFS(t *testing.T, driver Driver) *FileSystem {
	t.Helper()
	fs := New()
	if err := fs.Device("internal-test", internalTestCapacity, internalTestBlockSize); err != nil {
		t.Fatalf("Device: %v", err)
	}
	if err := fs.Bind(driver); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return fs
}
