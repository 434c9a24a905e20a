package rocketfs

import "testing"

func TestOpenStreamRejectsNonRawFileType(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("ecc-file", ECC)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if _, err := fs.OpenStream(f, Overwrite); err != ErrUnsupportedFileType {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestOpenStreamOverwriteSkipsFilenamePrefix(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("skip-test", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	s, err := fs.OpenStream(f, Overwrite)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	want := uint32(f.firstBlock)*fs.blockSize + blockHeaderSize + filenameFieldSize
	if s.cursor != want {
		t.Fatalf("Overwrite cursor = %d, want %d (past the reserved filename prefix)", s.cursor, want)
	}
	s.Close()
}

func TestOpenStreamAppendStartsAtUsedLength(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("append-test", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	s, err := fs.OpenStream(f, Append)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	want := uint32(f.firstBlock)*fs.blockSize + blockHeaderSize + filenameFieldSize
	if s.cursor != want {
		t.Fatalf("Append cursor on a fresh file = %d, want %d", s.cursor, want)
	}
	s.Close()
}

func TestTypedReadWriteRoundTrip(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("typed", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	ws, err := fs.OpenStream(f, Append)
	if err != nil {
		t.Fatalf("OpenStream write: %v", err)
	}
	if err := ws.WriteU8(0x12); err != nil {
		t.Fatalf("WriteU8: %v", err)
	}
	if err := ws.WriteU16(0x3456); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	if err := ws.WriteU32(0x789ABCDE); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if err := ws.WriteU64(0x0123456789ABCDEF); err != nil {
		t.Fatalf("WriteU64: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rs, err := fs.OpenStream(f, Overwrite)
	if err != nil {
		t.Fatalf("OpenStream read: %v", err)
	}
	defer rs.Close()

	if v, err := rs.ReadU8(); err != nil || v != 0x12 {
		t.Fatalf("ReadU8 = %#x, %v", v, err)
	}
	if v, err := rs.ReadU16(); err != nil || v != 0x3456 {
		t.Fatalf("ReadU16 = %#x, %v", v, err)
	}
	if v, err := rs.ReadU32(); err != nil || v != 0x789ABCDE {
		t.Fatalf("ReadU32 = %#x, %v", v, err)
	}
	if v, err := rs.ReadU64(); err != nil || v != 0x0123456789ABCDEF {
		t.Fatalf("ReadU64 = %#x, %v", v, err)
	}
}

func TestSecondStreamOpenFailsUntilFirstCloses(t *testing.T) {
	fs := newDirectoryTestFS(t, newTestRAM())
	if err := fs.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	f, err := fs.NewFile("lock-test", Raw)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	s1, err := fs.OpenStream(f, Overwrite)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := fs.OpenStream(f, Overwrite); err != ErrStreamOpen {
		t.Fatalf("expected ErrStreamOpen, got %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := fs.OpenStream(f, Overwrite)
	if err != nil {
		t.Fatalf("OpenStream after first closed: %v", err)
	}
	s2.Close()
}
