package bookfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Open opens (or creates) a book data file. A zero-length file gets a fresh
// header: FirstEmpty at the first slot, empty free list. A nil logger is
// replaced with zap.NewNop().
func Open(path string, logger *zap.Logger) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat data file: %w", err)
	}

	bf := &File{f: f, path: path, log: logger}

	if stat.Size() == 0 {
		bf.hdr = Header{FirstEmpty: HeaderSize, FreeHead: NullOffset}
		if err := bf.writeHeader(bf.hdr); err != nil {
			f.Close()
			return nil, err
		}
		logger.Info("created data file", zap.String("path", path))
		return bf, nil
	}

	hdr, err := bf.readHeader()
	if err != nil {
		f.Close()
		return nil, err
	}
	bf.hdr = hdr
	return bf, nil
}

// Header returns a copy of the in-memory header.
func (bf *File) Header() Header {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.hdr
}

// Path returns the file path the store was opened with.
func (bf *File) Path() string {
	return bf.path
}

// Insert writes book into a slot and returns the slot's byte offset. The
// head of the free list is reused when one exists; otherwise the file is
// extended by one slot width. The slot is written before the header so a
// failure can at worst leak an unreachable slot.
func (bf *File) Insert(book *Book) (int64, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.f == nil {
		return NullOffset, ErrFileClosed
	}

	buf, err := encodeBook(book)
	if err != nil {
		return NullOffset, err
	}

	hdr := bf.hdr
	var off int64
	if hdr.FreeHead != NullOffset {
		off = hdr.FreeHead
		next, err := bf.readFreeNext(off)
		if err != nil {
			return NullOffset, err
		}
		hdr.FreeHead = next
		bf.log.Debug("reusing freed slot", zap.Int64("offset", off), zap.Int64("nextFree", next))
	} else {
		off = hdr.FirstEmpty
		hdr.FirstEmpty += RecordSize
	}

	if _, err := bf.f.WriteAt(buf, off); err != nil {
		return NullOffset, fmt.Errorf("failed to write book at offset %d: %w", off, err)
	}
	if err := bf.writeHeader(hdr); err != nil {
		return NullOffset, err
	}
	bf.hdr = hdr
	return off, nil
}

// Read returns the book stored at off. Reading a slot that sits on the free
// list yields ErrSlotFree.
func (bf *File) Read(off int64) (*Book, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	return bf.readLocked(off)
}

func (bf *File) readLocked(off int64) (*Book, error) {
	if bf.f == nil {
		return nil, ErrFileClosed
	}
	if err := bf.checkOffset(off); err != nil {
		return nil, err
	}

	buf := make([]byte, RecordSize)
	if _, err := bf.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("failed to read slot at offset %d: %w", off, err)
	}
	if slotIsFree(buf) {
		return nil, fmt.Errorf("%w: offset %d", ErrSlotFree, off)
	}
	return decodeBook(buf)
}

// Delete returns the slot at off to the free list. The free overlay is
// written into the slot before the header's free head moves to it.
func (bf *File) Delete(off int64) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.f == nil {
		return ErrFileClosed
	}
	if err := bf.checkOffset(off); err != nil {
		return err
	}

	hdr := bf.hdr
	overlay := encodeFreeSlot(off, hdr.FreeHead)
	if _, err := bf.f.WriteAt(overlay, off); err != nil {
		return fmt.Errorf("failed to write free slot at offset %d: %w", off, err)
	}
	hdr.FreeHead = off
	if err := bf.writeHeader(hdr); err != nil {
		return err
	}
	bf.hdr = hdr
	bf.log.Debug("freed slot", zap.Int64("offset", off))
	return nil
}

// Scan calls fn for every live record in slot order, skipping slots whose
// code is the tombstone. fn returning an error stops the scan.
func (bf *File) Scan(fn func(off int64, book *Book) error) error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.f == nil {
		return ErrFileClosed
	}

	buf := make([]byte, RecordSize)
	for off := int64(HeaderSize); off < bf.hdr.FirstEmpty; off += RecordSize {
		if _, err := bf.f.ReadAt(buf, off); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read slot at offset %d: %w", off, err)
		}
		if slotIsFree(buf) {
			continue
		}
		book, err := decodeBook(buf)
		if err != nil {
			return err
		}
		if err := fn(off, book); err != nil {
			return err
		}
	}
	return nil
}

// FreeOffsets walks the free list from the header and returns the freed slot
// offsets in pop order. A chain longer than the number of allocated slots
// means a cycle, which is reported as corruption.
func (bf *File) FreeOffsets() ([]int64, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.f == nil {
		return nil, ErrFileClosed
	}

	maxSlots := int((bf.hdr.FirstEmpty - HeaderSize) / RecordSize)
	var out []int64
	for off := bf.hdr.FreeHead; off != NullOffset; {
		if err := bf.checkOffset(off); err != nil {
			return nil, fmt.Errorf("%w: bad link to %d", ErrCorruptFreeL, off)
		}
		if len(out) >= maxSlots {
			return nil, fmt.Errorf("%w: cycle detected", ErrCorruptFreeL)
		}
		out = append(out, off)
		next, err := bf.readFreeNext(off)
		if err != nil {
			return nil, err
		}
		off = next
	}
	return out, nil
}

// Sync flushes the file to stable storage.
func (bf *File) Sync() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.f == nil {
		return ErrFileClosed
	}
	return bf.f.Sync()
}

// Close syncs and closes the data file.
func (bf *File) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	if bf.f == nil {
		return nil
	}
	if err := bf.f.Sync(); err != nil {
		bf.f.Close()
		bf.f = nil
		return fmt.Errorf("failed to sync data file before close: %w", err)
	}
	err := bf.f.Close()
	bf.f = nil
	return err
}

// checkOffset rejects offsets outside the allocated region or not on a slot
// boundary.
func (bf *File) checkOffset(off int64) error {
	if off < HeaderSize || off >= bf.hdr.FirstEmpty || (off-HeaderSize)%RecordSize != 0 {
		return fmt.Errorf("%w: %d", ErrBadOffset, off)
	}
	return nil
}

// readFreeNext reads the next-free link out of the overlay at off.
func (bf *File) readFreeNext(off int64) (int64, error) {
	buf := make([]byte, RecordSize)
	if _, err := bf.f.ReadAt(buf, off); err != nil {
		return NullOffset, fmt.Errorf("failed to read free slot at offset %d: %w", off, err)
	}
	if !slotIsFree(buf) {
		return NullOffset, fmt.Errorf("%w: slot %d is not marked free", ErrCorruptFreeL, off)
	}
	return freeSlotNext(buf), nil
}

func (bf *File) readHeader() (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := bf.f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("failed to read data file header: %w", err)
	}
	return decodeHeader(buf)
}

func (bf *File) writeHeader(h Header) error {
	if _, err := bf.f.WriteAt(encodeHeader(h), 0); err != nil {
		return fmt.Errorf("failed to write data file header: %w", err)
	}
	return nil
}
