// Package hostdevice provides reference rocketfs.Driver implementations
// for hosts and tests. These are ambient collaborators, not part of the
// core: spec §1 treats the raw device driver as external, and spec §9
// notes the original source's own test suite carried an equivalent
// in-memory emulator (Test/Src/emulator.c) purely to enforce the driver
// contract during unit tests.
package hostdevice

import "fmt"

// RAM is an in-memory Driver that enforces NOR flash semantics: Write may
// only clear bits (it ANDs new bytes into the existing store), and
// EraseSubsector returns a block to all-ones. Core tests exercise this to
// catch any code path that would otherwise rely on invalid 0->1 writes.
type RAM struct {
	data      []byte
	blockSize uint32
}

// NewRAM allocates a zero-cost, all-erased RAM device of the given
// capacity and block size.
func NewRAM(capacity, blockSize uint32) *RAM {
	data := make([]byte, capacity)
	for i := range data {
		data[i] = 0xFF
	}
	return &RAM{data: data, blockSize: blockSize}
}

func (r *RAM) Read(addr uint32, buf []byte) {
	if int(addr)+len(buf) > len(r.data) {
		panic(fmt.Sprintf("hostdevice: read out of range addr=%d len=%d capacity=%d", addr, len(buf), len(r.data)))
	}
	copy(buf, r.data[addr:int(addr)+len(buf)])
}

func (r *RAM) Write(addr uint32, buf []byte) {
	if int(addr)+len(buf) > len(r.data) {
		panic(fmt.Sprintf("hostdevice: write out of range addr=%d len=%d capacity=%d", addr, len(buf), len(r.data)))
	}
	for i, b := range buf {
		r.data[int(addr)+i] &= b
	}
}

func (r *RAM) EraseSubsector(addr uint32) {
	base := (addr / r.blockSize) * r.blockSize
	for i := uint32(0); i < r.blockSize; i++ {
		r.data[base+i] = 0xFF
	}
}

// Snapshot returns a copy of the entire backing store, useful for tests
// that want to simulate a remount from a fresh Driver instance.
func (r *RAM) Snapshot() []byte {
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}
