package twothreetree

import (
	"fmt"
	"io"
	"math"
)

// Count returns the number of live keys in the tree.
func (t *Tree) Count() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return 0, ErrFileClosed
	}
	if t.hdr.Root == NullOffset {
		return 0, nil
	}
	return t.countAt(t.hdr.Root)
}

func (t *Tree) countAt(off int64) (int, error) {
	n, err := t.loadNode(off)
	if err != nil {
		return 0, err
	}
	total := int(n.NumKeys)
	if n.Leaf() {
		return total, nil
	}
	for ci := 0; ci <= int(n.NumKeys); ci++ {
		sub, err := t.countAt(n.Children[ci])
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

// Dump writes a level-by-level description of the tree to w.
func (t *Tree) Dump(w io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return ErrFileClosed
	}

	fmt.Fprintf(w, "Index file: %s\n", t.path)
	fmt.Fprintf(w, "  root=%d firstEmpty=%d freeHead=%d\n", t.hdr.Root, t.hdr.FirstEmpty, t.hdr.FreeHead)
	if t.hdr.Root == NullOffset {
		fmt.Fprintln(w, "  (empty tree)")
		return nil
	}

	queue := []int64{t.hdr.Root}
	level := 0
	for len(queue) > 0 {
		size := len(queue)
		fmt.Fprintf(w, "  Level %d:\n", level)
		for _, off := range queue[:size] {
			n, err := t.loadNode(off)
			if err != nil {
				fmt.Fprintf(w, "    [%d] load error: %v\n", off, err)
				continue
			}
			kind := "INTERNAL"
			if n.Leaf() {
				kind = "LEAF"
			}
			fmt.Fprintf(w, "    [%d] %s", off, kind)
			for i := 0; i < int(n.NumKeys); i++ {
				fmt.Fprintf(w, " %d->%d", n.Keys[i], n.Books[i])
			}
			if !n.Leaf() {
				fmt.Fprintf(w, " children=%v", n.Children[:n.NumKeys+1])
				queue = append(queue, n.Children[:n.NumKeys+1]...)
			}
			fmt.Fprintln(w)
		}
		queue = queue[size:]
		level++
	}
	return nil
}

// Validate walks the whole tree and reports the first structural violation:
// uneven leaf depth, unordered keys, or subtree keys outside the parent's
// separators. Meant for tests and the inspection tool.
func (t *Tree) Validate() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return ErrFileClosed
	}
	if t.hdr.Root == NullOffset {
		return nil
	}
	_, err := t.validateAt(t.hdr.Root, int64(math.MinInt32)-1, int64(math.MaxInt32)+1)
	return err
}

// validateAt returns the leaf depth of the subtree at off.
func (t *Tree) validateAt(off int64, lo, hi int64) (int, error) {
	n, err := t.loadNode(off)
	if err != nil {
		return 0, err
	}

	for i := 0; i < int(n.NumKeys); i++ {
		k := int64(n.Keys[i])
		if k <= lo || k >= hi {
			return 0, fmt.Errorf("node %d: key %d outside (%d, %d)", off, k, lo, hi)
		}
	}
	if n.NumKeys == 2 && n.Keys[0] >= n.Keys[1] {
		return 0, fmt.Errorf("node %d: keys %d, %d not strictly ordered", off, n.Keys[0], n.Keys[1])
	}

	if n.Leaf() {
		for ci := 1; ci <= int(n.NumKeys); ci++ {
			if n.Children[ci] != NullOffset {
				return 0, fmt.Errorf("leaf %d: unexpected child %d", off, n.Children[ci])
			}
		}
		return 0, nil
	}

	bounds := make([]int64, 0, 4)
	bounds = append(bounds, lo)
	for i := 0; i < int(n.NumKeys); i++ {
		bounds = append(bounds, int64(n.Keys[i]))
	}
	bounds = append(bounds, hi)

	depth := -1
	for ci := 0; ci <= int(n.NumKeys); ci++ {
		if n.Children[ci] == NullOffset {
			return 0, fmt.Errorf("internal node %d: missing child %d", off, ci)
		}
		d, err := t.validateAt(n.Children[ci], bounds[ci], bounds[ci+1])
		if err != nil {
			return 0, err
		}
		if depth == -1 {
			depth = d
		} else if d != depth {
			return 0, fmt.Errorf("node %d: uneven leaf depth under children", off)
		}
	}
	return depth + 1, nil
}
