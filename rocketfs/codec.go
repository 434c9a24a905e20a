package rocketfs

import "encoding/binary"

// Every on-disk integer in RocketFS is little-endian (spec §9 standardises
// on this, resolving the original source's mix of byte orders). These
// thin wrappers exist so every call site names its width explicitly
// instead of reaching for encoding/binary ad hoc.

func getU16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func getU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func getU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
