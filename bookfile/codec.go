package bookfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// On-disk slot layout (little-endian):
//   0:4     code
//   4:155   title  (zero-padded)
//   155:356 author (zero-padded)
//   356:407 publisher (zero-padded)
//   407:411 edition
//   411:415 year
//   415:423 price (float64 bits)
//   423:427 stock
//
// Free overlay, same width, discriminated by code == Tombstone:
//   0:4  Tombstone
//   4:8  own offset
//   8:12 next free offset (NullOffset at the tail)

func putText(dst []byte, s string, field string) error {
	// keep one padding byte so a maximal string is still distinguishable
	if len(s) >= len(dst) {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFieldTooLong, field, len(s), len(dst)-1)
	}
	copy(dst, s)
	return nil
}

func getText(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

func encodeBook(b *Book) ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(b.Code))
	if err := putText(buf[4:155], b.Title, "title"); err != nil {
		return nil, err
	}
	if err := putText(buf[155:356], b.Author, "author"); err != nil {
		return nil, err
	}
	if err := putText(buf[356:407], b.Publisher, "publisher"); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[407:411], uint32(b.Edition))
	binary.LittleEndian.PutUint32(buf[411:415], uint32(b.Year))
	binary.LittleEndian.PutUint64(buf[415:423], math.Float64bits(b.Price))
	binary.LittleEndian.PutUint32(buf[423:427], uint32(b.Stock))
	return buf, nil
}

func decodeBook(buf []byte) (*Book, error) {
	if len(buf) != RecordSize {
		return nil, fmt.Errorf("slot size mismatch: expected %d, got %d", RecordSize, len(buf))
	}
	return &Book{
		Code:      int32(binary.LittleEndian.Uint32(buf[0:4])),
		Title:     getText(buf[4:155]),
		Author:    getText(buf[155:356]),
		Publisher: getText(buf[356:407]),
		Edition:   int32(binary.LittleEndian.Uint32(buf[407:411])),
		Year:      int32(binary.LittleEndian.Uint32(buf[411:415])),
		Price:     math.Float64frombits(binary.LittleEndian.Uint64(buf[415:423])),
		Stock:     int32(binary.LittleEndian.Uint32(buf[423:427])),
	}, nil
}

func encodeFreeSlot(self, next int64) []byte {
	buf := make([]byte, RecordSize)
	tag := Tombstone
	binary.LittleEndian.PutUint32(buf[0:4], uint32(tag))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(self)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(next)))
	return buf
}

func slotIsFree(buf []byte) bool {
	return int32(binary.LittleEndian.Uint32(buf[0:4])) == Tombstone
}

func freeSlotNext(buf []byte) int64 {
	return int64(int32(binary.LittleEndian.Uint32(buf[8:12])))
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(h.FirstEmpty)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(h.FreeHead)))
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("header size mismatch: expected %d, got %d", HeaderSize, len(buf))
	}
	return Header{
		FirstEmpty: int64(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		FreeHead:   int64(int32(binary.LittleEndian.Uint32(buf[4:8]))),
	}, nil
}
