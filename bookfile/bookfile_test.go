package bookfile

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestFile(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.dat")
	bf, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Failed to open data file: %v", err)
	}
	t.Cleanup(func() { bf.Close() })
	return bf
}

func sampleBook(code int32) *Book {
	return &Book{
		Code:      code,
		Title:     "The Go Programming Language",
		Author:    "Donovan, Kernighan",
		Publisher: "Addison-Wesley",
		Edition:   1,
		Year:      2015,
		Price:     39.99,
		Stock:     12,
	}
}

func TestInsertReadRoundTrip(t *testing.T) {
	bf := openTestFile(t)

	want := sampleBook(101)
	off, err := bf.Insert(want)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if off != HeaderSize {
		t.Errorf("Expected first slot at %d, got %d", HeaderSize, off)
	}

	got, err := bf.Read(off)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if *got != *want {
		t.Errorf("Round-trip mismatch:\n  want %+v\n  got  %+v", want, got)
	}
}

func TestAppendAdvancesByRecordSize(t *testing.T) {
	bf := openTestFile(t)

	for i := 0; i < 3; i++ {
		off, err := bf.Insert(sampleBook(int32(100 + i)))
		if err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
		want := int64(HeaderSize + i*RecordSize)
		if off != want {
			t.Errorf("Insert %d: expected offset %d, got %d", i, want, off)
		}
	}
	if hdr := bf.Header(); hdr.FirstEmpty != HeaderSize+3*RecordSize {
		t.Errorf("FirstEmpty = %d, want %d", hdr.FirstEmpty, HeaderSize+3*RecordSize)
	}
}

// Freed middle slot must be reused before the file grows.
func TestFreedSlotIsReused(t *testing.T) {
	bf := openTestFile(t)

	var offs []int64
	for i := 0; i < 3; i++ {
		off, err := bf.Insert(sampleBook(int32(200 + i)))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		offs = append(offs, off)
	}

	if err := bf.Delete(offs[1]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := bf.Read(offs[1]); !errors.Is(err, ErrSlotFree) {
		t.Errorf("Read of freed slot: expected ErrSlotFree, got %v", err)
	}

	off, err := bf.Insert(sampleBook(300))
	if err != nil {
		t.Fatalf("Insert into freed slot failed: %v", err)
	}
	if off != offs[1] {
		t.Errorf("Expected reuse of slot %d, got %d", offs[1], off)
	}
	if hdr := bf.Header(); hdr.FirstEmpty != HeaderSize+3*RecordSize {
		t.Errorf("File grew during reuse: FirstEmpty = %d", hdr.FirstEmpty)
	}
}

// Free list is LIFO: delete X then Y, allocate twice, get Y then X.
func TestFreeSlotCodecRoundTrip(t *testing.T) {
	buf := encodeFreeSlot(HeaderSize, HeaderSize+RecordSize)
	if got := int32(binary.LittleEndian.Uint32(buf[0:4])); got != Tombstone {
		t.Fatalf("Free slot tag: want %d, got %d", Tombstone, got)
	}
	if !slotIsFree(buf) {
		t.Error("slotIsFree returned false for an encoded free slot")
	}
	if got := freeSlotNext(buf); got != HeaderSize+RecordSize {
		t.Errorf("freeSlotNext: want %d, got %d", HeaderSize+RecordSize, got)
	}
	if got := freeSlotNext(encodeFreeSlot(HeaderSize, NullOffset)); got != NullOffset {
		t.Errorf("freeSlotNext at list end: want %d, got %d", NullOffset, got)
	}
}

func TestFreeListIsLIFO(t *testing.T) {
	bf := openTestFile(t)

	var offs []int64
	for i := 0; i < 2; i++ {
		off, err := bf.Insert(sampleBook(int32(i + 1)))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		offs = append(offs, off)
	}

	if err := bf.Delete(offs[0]); err != nil {
		t.Fatalf("Delete X failed: %v", err)
	}
	if err := bf.Delete(offs[1]); err != nil {
		t.Fatalf("Delete Y failed: %v", err)
	}

	free, err := bf.FreeOffsets()
	if err != nil {
		t.Fatalf("FreeOffsets failed: %v", err)
	}
	if len(free) != 2 || free[0] != offs[1] || free[1] != offs[0] {
		t.Errorf("Free list = %v, want [%d %d]", free, offs[1], offs[0])
	}

	first, err := bf.Insert(sampleBook(10))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	second, err := bf.Insert(sampleBook(11))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if first != offs[1] || second != offs[0] {
		t.Errorf("Reuse order = %d, %d; want %d, %d", first, second, offs[1], offs[0])
	}

	if hdr := bf.Header(); hdr.FreeHead != NullOffset {
		t.Errorf("FreeHead = %d after draining the free list, want %d", hdr.FreeHead, NullOffset)
	}
}

func TestScanSkipsFreedSlots(t *testing.T) {
	bf := openTestFile(t)

	var offs []int64
	for i := 0; i < 4; i++ {
		off, err := bf.Insert(sampleBook(int32(i + 1)))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		offs = append(offs, off)
	}
	if err := bf.Delete(offs[2]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var codes []int32
	err := bf.Scan(func(_ int64, b *Book) error {
		codes = append(codes, b.Code)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []int32{1, 2, 4}
	if len(codes) != len(want) {
		t.Fatalf("Scan returned codes %v, want %v", codes, want)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("Scan returned codes %v, want %v", codes, want)
			break
		}
	}
}

func TestHeaderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books.dat")

	bf, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	off1, err := bf.Insert(sampleBook(7))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	off2, err := bf.Insert(sampleBook(8))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := bf.Delete(off1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := bf.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	bf, err = Open(path, nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer bf.Close()

	hdr := bf.Header()
	if hdr.FreeHead != off1 {
		t.Errorf("FreeHead = %d after reopen, want %d", hdr.FreeHead, off1)
	}
	if hdr.FirstEmpty != HeaderSize+2*RecordSize {
		t.Errorf("FirstEmpty = %d after reopen, want %d", hdr.FirstEmpty, HeaderSize+2*RecordSize)
	}

	got, err := bf.Read(off2)
	if err != nil {
		t.Fatalf("Read after reopen failed: %v", err)
	}
	if got.Code != 8 {
		t.Errorf("Read returned code %d, want 8", got.Code)
	}

	// deleted slot must still be reusable
	off, err := bf.Insert(sampleBook(9))
	if err != nil {
		t.Fatalf("Insert after reopen failed: %v", err)
	}
	if off != off1 {
		t.Errorf("Expected reuse of slot %d after reopen, got %d", off1, off)
	}
}

func TestRejectsOversizedFields(t *testing.T) {
	bf := openTestFile(t)

	b := sampleBook(1)
	b.Title = string(make([]byte, 200))
	if _, err := bf.Insert(b); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("Expected ErrFieldTooLong, got %v", err)
	}
	if hdr := bf.Header(); hdr.FirstEmpty != HeaderSize {
		t.Errorf("Failed insert changed the header: %+v", hdr)
	}
}

func TestInvalidOffsets(t *testing.T) {
	bf := openTestFile(t)

	if _, err := bf.Insert(sampleBook(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for _, off := range []int64{0, HeaderSize - 1, HeaderSize + 1, HeaderSize + RecordSize} {
		if _, err := bf.Read(off); !errors.Is(err, ErrBadOffset) {
			t.Errorf("Read(%d): expected ErrBadOffset, got %v", off, err)
		}
		if err := bf.Delete(off); !errors.Is(err, ErrBadOffset) {
			t.Errorf("Delete(%d): expected ErrBadOffset, got %v", off, err)
		}
	}
}

func TestClosedFileOperationsFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.dat")
	bf, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := bf.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := bf.Insert(sampleBook(1)); !errors.Is(err, ErrFileClosed) {
		t.Errorf("Insert on closed file: expected ErrFileClosed, got %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
}
