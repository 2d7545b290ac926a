package bookfile

import (
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"
)

const (
	// HeaderSize is the fixed size of the data file header at offset 0.
	HeaderSize = 8

	// RecordSize is the fixed width of every book slot:
	// code(4) + title(151) + author(201) + publisher(51) +
	// edition(4) + year(4) + price(8) + stock(4).
	RecordSize = 427

	// Tombstone is the reserved code marking a slot as removed/never used.
	// A freed slot also carries it as the free-overlay discriminant.
	Tombstone int32 = -1

	// NullOffset marks the end of the free list and "no slot".
	NullOffset int64 = -1
)

var (
	ErrFileClosed   = errors.New("book file is closed")
	ErrBadOffset    = errors.New("offset is not a valid book slot")
	ErrSlotFree     = errors.New("slot is on the free list")
	ErrFieldTooLong = errors.New("text field exceeds its fixed width")
	ErrCorruptFreeL = errors.New("free list is corrupt")
)

// Book is one fixed-width record in the data file. Live records never use
// code -1; text fields are zero-padded on disk and truncation is an error,
// not silent.
type Book struct {
	Code      int32
	Title     string
	Author    string
	Publisher string
	Edition   int32
	Year      int32
	Price     float64
	Stock     int32
}

// Header is the data file header. Both fields are byte offsets:
// FirstEmpty is the next never-used slot (grows monotonically),
// FreeHead is the head of the freed-slot list (NullOffset when empty).
type Header struct {
	FirstEmpty int64
	FreeHead   int64
}

// File is the book data file. It owns the slot allocator for its records:
// Insert pops the free list or extends the file, Delete pushes onto it.
// Single-writer; the mutex only guards against accidental concurrent use.
type File struct {
	f    *os.File
	path string
	hdr  Header
	log  *zap.Logger
	mu   sync.Mutex
}
