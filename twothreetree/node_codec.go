package twothreetree

import (
	"encoding/binary"
	"fmt"
)

// On-disk node slot layout (little-endian int32s):
//   0:4   nKeys
//   4:8   leftKey     8:12  rightKey
//   12:16 leftBook    16:20 rightBook
//   20:24 leftChild   24:28 middleChild   28:32 rightChild
//
// Free overlay, same width, discriminated by freeSlotTag in the nKeys
// position:
//   0:4 freeSlotTag
//   4:8 next free offset (NullOffset at the tail)

func encodeNode(n *Node) []byte {
	buf := make([]byte, NodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n.NumKeys))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n.Keys[0]))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n.Keys[1]))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(int32(n.Books[0])))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(int32(n.Books[1])))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(int32(n.Children[0])))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(int32(n.Children[1])))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(int32(n.Children[2])))
	return buf
}

func decodeNode(buf []byte, off int64) (*Node, error) {
	if len(buf) != NodeSize {
		return nil, fmt.Errorf("node size mismatch: expected %d, got %d", NodeSize, len(buf))
	}
	nKeys := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if nKeys == freeSlotTag {
		return nil, fmt.Errorf("%w: slot %d is on the free list", ErrCorruptNode, off)
	}
	if nKeys != 1 && nKeys != 2 {
		return nil, fmt.Errorf("%w: slot %d has %d keys", ErrCorruptNode, off, nKeys)
	}
	n := &Node{
		NumKeys: nKeys,
		Keys: [2]int32{
			int32(binary.LittleEndian.Uint32(buf[4:8])),
			int32(binary.LittleEndian.Uint32(buf[8:12])),
		},
		Books: [2]int64{
			int64(int32(binary.LittleEndian.Uint32(buf[12:16]))),
			int64(int32(binary.LittleEndian.Uint32(buf[16:20]))),
		},
		Children: [3]int64{
			int64(int32(binary.LittleEndian.Uint32(buf[20:24]))),
			int64(int32(binary.LittleEndian.Uint32(buf[24:28]))),
			int64(int32(binary.LittleEndian.Uint32(buf[28:32]))),
		},
	}
	return n, nil
}

func encodeFreeSlot(next int64) []byte {
	buf := make([]byte, NodeSize)
	tag := freeSlotTag
	binary.LittleEndian.PutUint32(buf[0:4], uint32(tag))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(next)))
	return buf
}

func slotIsFree(buf []byte) bool {
	return int32(binary.LittleEndian.Uint32(buf[0:4])) == freeSlotTag
}

func freeSlotNext(buf []byte) int64 {
	return int64(int32(binary.LittleEndian.Uint32(buf[4:8])))
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(h.Root)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(h.FirstEmpty)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(h.FreeHead)))
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("header size mismatch: expected %d, got %d", HeaderSize, len(buf))
	}
	return Header{
		Root:       int64(int32(binary.LittleEndian.Uint32(buf[0:4]))),
		FirstEmpty: int64(int32(binary.LittleEndian.Uint32(buf[4:8]))),
		FreeHead:   int64(int32(binary.LittleEndian.Uint32(buf[8:12]))),
	}, nil
}
