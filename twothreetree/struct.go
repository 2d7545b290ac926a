// Structure of the index file:
//
//	[header][node][node]...
//
// The header carries the root offset and the free-list state. Every node
// slot is 32 bytes; a slot is either a live node (1 or 2 keys) or a free
// slot tagged in the key-count position and threaded into the free list.
// All leaves sit at the same depth; an internal node has exactly nKeys+1
// children.
package twothreetree

import (
	"errors"
	"os"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

const (
	// HeaderSize is the fixed size of the index file header at offset 0.
	HeaderSize = 12

	// NodeSize is the fixed width of a node slot: eight int32 fields.
	NodeSize = 32

	// NullOffset marks an absent child, an empty root and the free-list tail.
	NullOffset int64 = -1

	// freeSlotTag sits in the key-count position of a freed slot.
	freeSlotTag int32 = -1

	cacheNumCounters = 1 << 14
	cacheMaxCost     = 1 << 12 // nodes, at cost 1 each
	cacheBufferItems = 64
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrDuplicateKey    = errors.New("key already exists")
	ErrFileClosed      = errors.New("index file is closed")
	ErrBadOffset       = errors.New("offset is not a valid node slot")
	ErrCorruptNode     = errors.New("corrupt node slot")
	ErrCorruptFreeList = errors.New("index free list is corrupt")
)

// Node is one 2-3 tree node. Keys[1]/Books[1] are valid only when NumKeys
// is 2; Children[2] only when an internal node holds 2 keys. Books pair a
// record offset in the data file with each key.
type Node struct {
	NumKeys  int32
	Keys     [2]int32
	Books    [2]int64
	Children [3]int64
}

// Leaf reports whether n has no children.
func (n *Node) Leaf() bool {
	return n.Children[0] == NullOffset
}

// find returns the position of key within n.
func (n *Node) find(key int32) (int, bool) {
	if key == n.Keys[0] {
		return 0, true
	}
	if n.NumKeys == 2 && key == n.Keys[1] {
		return 1, true
	}
	return 0, false
}

// branch returns the child index to descend into for key.
func (n *Node) branch(key int32) int {
	if key < n.Keys[0] {
		return 0
	}
	if n.NumKeys == 1 || key < n.Keys[1] {
		return 1
	}
	return 2
}

// clone returns an independent copy, so cached nodes never alias the copies
// handed to tree operations.
func (n *Node) clone() *Node {
	c := *n
	return &c
}

func newLeaf(key int32, book int64) *Node {
	return &Node{
		NumKeys:  1,
		Keys:     [2]int32{key, 0},
		Books:    [2]int64{book, 0},
		Children: [3]int64{NullOffset, NullOffset, NullOffset},
	}
}

// Header is the index file header. Root is the root node's byte offset
// (NullOffset for an empty tree), FirstEmpty the next never-used slot,
// FreeHead the freed-slot list head.
type Header struct {
	Root       int64
	FirstEmpty int64
	FreeHead   int64
}

// Tree is the persistent 2-3 tree over the index file. It owns the node
// store (slot allocator plus free list) and the header; nothing else ever
// writes Root. Single-writer; the mutex only guards against accidental
// concurrent use.
type Tree struct {
	f     *os.File
	path  string
	hdr   Header
	cache *ristretto.Cache[int64, *Node]
	log   *zap.Logger
	mu    sync.Mutex
}
