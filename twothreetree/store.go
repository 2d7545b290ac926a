package twothreetree

import (
	"fmt"
	"os"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// Open opens (or creates) an index file. A zero-length file gets a fresh
// header: empty tree, FirstEmpty at the first slot, empty free list. A nil
// logger is replaced with zap.NewNop().
func Open(path string, logger *zap.Logger) (*Tree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file %s: %w", path, err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[int64, *Node]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}

	t := &Tree{f: f, path: path, cache: cache, log: logger}

	stat, err := f.Stat()
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to stat index file: %w", err)
	}

	if stat.Size() == 0 {
		t.hdr = Header{Root: NullOffset, FirstEmpty: HeaderSize, FreeHead: NullOffset}
		if err := t.writeHeader(t.hdr); err != nil {
			t.Close()
			return nil, err
		}
		logger.Info("created index file", zap.String("path", path))
		return t, nil
	}

	hdr, err := t.readHeader()
	if err != nil {
		t.Close()
		return nil, err
	}
	t.hdr = hdr
	return t, nil
}

// Header returns a copy of the in-memory header.
func (t *Tree) Header() Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hdr
}

// Path returns the file path the index was opened with.
func (t *Tree) Path() string {
	return t.path
}

// Sync flushes the index file to stable storage.
func (t *Tree) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return ErrFileClosed
	}
	return t.f.Sync()
}

// Close releases the node cache and closes the index file.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cache != nil {
		t.cache.Close()
		t.cache = nil
	}
	if t.f == nil {
		return nil
	}
	if err := t.f.Sync(); err != nil {
		t.f.Close()
		t.f = nil
		return fmt.Errorf("failed to sync index file before close: %w", err)
	}
	err := t.f.Close()
	t.f = nil
	return err
}

// loadNode reads the node at off, going through the cache. The returned
// node is always a private copy the caller may mutate.
func (t *Tree) loadNode(off int64) (*Node, error) {
	if t.f == nil {
		return nil, ErrFileClosed
	}
	if err := t.checkOffset(off); err != nil {
		return nil, err
	}

	if n, ok := t.cache.Get(off); ok {
		return n.clone(), nil
	}

	buf := make([]byte, NodeSize)
	if _, err := t.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("failed to read node at offset %d: %w", off, err)
	}
	n, err := decodeNode(buf, off)
	if err != nil {
		return nil, err
	}

	// Wait drains the set buffer so a later save cannot be undone by this
	// entry landing after its invalidation.
	t.cache.Set(off, n.clone(), 1)
	t.cache.Wait()
	return n, nil
}

// saveNode writes n to its existing offset and invalidates the cache entry.
// A node keeps its offset across key changes; only splits allocate.
func (t *Tree) saveNode(off int64, n *Node) error {
	if t.f == nil {
		return ErrFileClosed
	}
	if err := t.checkOffset(off); err != nil {
		return err
	}
	if _, err := t.f.WriteAt(encodeNode(n), off); err != nil {
		return fmt.Errorf("failed to write node at offset %d: %w", off, err)
	}
	t.cache.Del(off)
	return nil
}

// createNode writes n into a fresh slot and returns the slot's byte offset.
// Reuse pops the head of the free list and returns that slot's own address;
// otherwise the file grows by one slot width. The node is written before
// the header so a failure leaks at worst an unreachable slot.
func (t *Tree) createNode(n *Node) (int64, error) {
	if t.f == nil {
		return NullOffset, ErrFileClosed
	}

	hdr := t.hdr
	var off int64
	if hdr.FreeHead != NullOffset {
		off = hdr.FreeHead
		next, err := t.readFreeNext(off)
		if err != nil {
			return NullOffset, err
		}
		hdr.FreeHead = next
		t.log.Debug("reusing freed node slot", zap.Int64("offset", off), zap.Int64("nextFree", next))
	} else {
		off = hdr.FirstEmpty
		hdr.FirstEmpty += NodeSize
	}

	if _, err := t.f.WriteAt(encodeNode(n), off); err != nil {
		return NullOffset, fmt.Errorf("failed to write node at offset %d: %w", off, err)
	}
	t.cache.Del(off)
	if err := t.writeHeader(hdr); err != nil {
		return NullOffset, err
	}
	t.hdr = hdr
	return off, nil
}

// freeNode pushes the slot at off onto the free list. The free overlay is
// written into the slot before the header's free head moves to it.
func (t *Tree) freeNode(off int64) error {
	if t.f == nil {
		return ErrFileClosed
	}
	if err := t.checkOffset(off); err != nil {
		return err
	}

	hdr := t.hdr
	if _, err := t.f.WriteAt(encodeFreeSlot(hdr.FreeHead), off); err != nil {
		return fmt.Errorf("failed to write free slot at offset %d: %w", off, err)
	}
	t.cache.Del(off)
	hdr.FreeHead = off
	if err := t.writeHeader(hdr); err != nil {
		return err
	}
	t.hdr = hdr
	t.log.Debug("freed node slot", zap.Int64("offset", off))
	return nil
}

// setRoot persists a new root offset. This is the only place Root changes.
func (t *Tree) setRoot(root int64) error {
	hdr := t.hdr
	hdr.Root = root
	if err := t.writeHeader(hdr); err != nil {
		return err
	}
	t.hdr = hdr
	return nil
}

// FreeOffsets walks the free list from the header and returns the freed
// slot offsets in pop order. A chain longer than the number of allocated
// slots means a cycle, which is reported as corruption.
func (t *Tree) FreeOffsets() ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return nil, ErrFileClosed
	}

	maxSlots := int((t.hdr.FirstEmpty - HeaderSize) / NodeSize)
	var out []int64
	for off := t.hdr.FreeHead; off != NullOffset; {
		if err := t.checkOffset(off); err != nil {
			return nil, fmt.Errorf("%w: bad link to %d", ErrCorruptFreeList, off)
		}
		if len(out) >= maxSlots {
			return nil, fmt.Errorf("%w: cycle detected", ErrCorruptFreeList)
		}
		out = append(out, off)
		next, err := t.readFreeNext(off)
		if err != nil {
			return nil, err
		}
		off = next
	}
	return out, nil
}

func (t *Tree) checkOffset(off int64) error {
	if off < HeaderSize || off >= t.hdr.FirstEmpty || (off-HeaderSize)%NodeSize != 0 {
		return fmt.Errorf("%w: %d", ErrBadOffset, off)
	}
	return nil
}

func (t *Tree) readFreeNext(off int64) (int64, error) {
	buf := make([]byte, NodeSize)
	if _, err := t.f.ReadAt(buf, off); err != nil {
		return NullOffset, fmt.Errorf("failed to read free slot at offset %d: %w", off, err)
	}
	if !slotIsFree(buf) {
		return NullOffset, fmt.Errorf("%w: slot %d is not marked free", ErrCorruptFreeList, off)
	}
	return freeSlotNext(buf), nil
}

func (t *Tree) readHeader() (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := t.f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("failed to read index file header: %w", err)
	}
	return decodeHeader(buf)
}

func (t *Tree) writeHeader(h Header) error {
	if _, err := t.f.WriteAt(encodeHeader(h), 0); err != nil {
		return fmt.Errorf("failed to write index file header: %w", err)
	}
	return nil
}
