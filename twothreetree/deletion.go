package twothreetree

// Deletion never persists a node with zero keys. An underflowed node is
// handed up in memory (its sole child, if any, in Children[0]) until a
// sibling refills it or a merge removes it; slots merged away are freed
// only after every node that referenced them has been rewritten.

// Delete removes key from the index. Physical removal always happens at a
// leaf; an internal occurrence is first replaced by its in-order successor.
func (t *Tree) Delete(key int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return ErrFileClosed
	}
	if t.hdr.Root == NullOffset {
		return ErrKeyNotFound
	}

	var pending []int64
	hole, err := t.deleteAt(t.hdr.Root, key, &pending)
	if err != nil {
		return err
	}
	if hole != nil {
		// the root emptied out: its sole child (NullOffset for a leaf)
		// becomes the root and the old slot is reclaimed
		old := t.hdr.Root
		if err := t.setRoot(hole.Children[0]); err != nil {
			return err
		}
		pending = append(pending, old)
	}
	for _, off := range pending {
		if err := t.freeNode(off); err != nil {
			return err
		}
	}
	return nil
}

// deleteAt removes key from the subtree rooted at off. A non-nil return is
// the node at off emptied to zero keys, not yet persisted.
func (t *Tree) deleteAt(off int64, key int32, pending *[]int64) (*Node, error) {
	n, err := t.loadNode(off)
	if err != nil {
		return nil, err
	}

	if i, ok := n.find(key); ok {
		if n.Leaf() {
			n.removeEntry(i)
			if n.NumKeys == 0 {
				return n, nil
			}
			return nil, t.saveNode(off, n)
		}

		// replace with the minimum of the subtree right of the key, then
		// delete that successor where it lives
		sKey, sBook, err := t.minEntry(n.Children[i+1])
		if err != nil {
			return nil, err
		}
		n.Keys[i], n.Books[i] = sKey, sBook
		if err := t.saveNode(off, n); err != nil {
			return nil, err
		}
		hole, err := t.deleteAt(n.Children[i+1], sKey, pending)
		if err != nil || hole == nil {
			return nil, err
		}
		return t.fixChild(off, i+1, hole, pending)
	}

	if n.Leaf() {
		return nil, ErrKeyNotFound
	}
	ci := n.branch(key)
	hole, err := t.deleteAt(n.Children[ci], key, pending)
	if err != nil || hole == nil {
		return nil, err
	}
	return t.fixChild(off, ci, hole, pending)
}

// fixChild resolves the underflowed child ci of the node at parentOff.
// A two-key sibling lends a key through the parent; otherwise the child is
// merged into a sibling, taking one parent key with it. A non-nil return is
// the parent itself emptied to zero keys.
func (t *Tree) fixChild(parentOff int64, ci int, hole *Node, pending *[]int64) (*Node, error) {
	p, err := t.loadNode(parentOff)
	if err != nil {
		return nil, err
	}
	holeOff := p.Children[ci]
	holeChild := hole.Children[0]

	// redistribute from the right sibling
	if ci < int(p.NumKeys) {
		rsOff := p.Children[ci+1]
		rs, err := t.loadNode(rsOff)
		if err != nil {
			return nil, err
		}
		if rs.NumKeys == 2 {
			sep := ci
			refilled := &Node{
				NumKeys:  1,
				Keys:     [2]int32{p.Keys[sep], 0},
				Books:    [2]int64{p.Books[sep], 0},
				Children: [3]int64{holeChild, rs.Children[0], NullOffset},
			}
			p.Keys[sep], p.Books[sep] = rs.Keys[0], rs.Books[0]
			rs.shiftLeft()
			if err := t.saveNode(holeOff, refilled); err != nil {
				return nil, err
			}
			if err := t.saveNode(rsOff, rs); err != nil {
				return nil, err
			}
			return nil, t.saveNode(parentOff, p)
		}
	}

	// redistribute from the left sibling
	if ci > 0 {
		lsOff := p.Children[ci-1]
		ls, err := t.loadNode(lsOff)
		if err != nil {
			return nil, err
		}
		if ls.NumKeys == 2 {
			sep := ci - 1
			refilled := &Node{
				NumKeys:  1,
				Keys:     [2]int32{p.Keys[sep], 0},
				Books:    [2]int64{p.Books[sep], 0},
				Children: [3]int64{ls.Children[2], holeChild, NullOffset},
			}
			p.Keys[sep], p.Books[sep] = ls.Keys[1], ls.Books[1]
			ls.dropRight()
			if err := t.saveNode(holeOff, refilled); err != nil {
				return nil, err
			}
			if err := t.saveNode(lsOff, ls); err != nil {
				return nil, err
			}
			return nil, t.saveNode(parentOff, p)
		}
	}

	// merge into the left sibling, pulling the separator down
	if ci > 0 {
		lsOff := p.Children[ci-1]
		ls, err := t.loadNode(lsOff)
		if err != nil {
			return nil, err
		}
		sep := ci - 1
		ls.Keys[1], ls.Books[1] = p.Keys[sep], p.Books[sep]
		ls.Children[2] = holeChild
		ls.NumKeys = 2
		if err := t.saveNode(lsOff, ls); err != nil {
			return nil, err
		}
		p.removeKeyAndChild(sep, ci)
		*pending = append(*pending, holeOff)
		if p.NumKeys == 0 {
			return p, nil
		}
		return nil, t.saveNode(parentOff, p)
	}

	// ci == 0: absorb the right sibling into the refilled hole
	rsOff := p.Children[1]
	rs, err := t.loadNode(rsOff)
	if err != nil {
		return nil, err
	}
	refilled := &Node{
		NumKeys:  2,
		Keys:     [2]int32{p.Keys[0], rs.Keys[0]},
		Books:    [2]int64{p.Books[0], rs.Books[0]},
		Children: [3]int64{holeChild, rs.Children[0], rs.Children[1]},
	}
	if err := t.saveNode(holeOff, refilled); err != nil {
		return nil, err
	}
	p.removeKeyAndChild(0, 1)
	*pending = append(*pending, rsOff)
	if p.NumKeys == 0 {
		return p, nil
	}
	return nil, t.saveNode(parentOff, p)
}

// minEntry returns the smallest key/record pair in the subtree at off.
func (t *Tree) minEntry(off int64) (int32, int64, error) {
	for {
		n, err := t.loadNode(off)
		if err != nil {
			return 0, NullOffset, err
		}
		if n.Leaf() {
			return n.Keys[0], n.Books[0], nil
		}
		off = n.Children[0]
	}
}

// removeEntry drops the key at i from a leaf.
func (n *Node) removeEntry(i int) {
	if i == 0 {
		n.Keys[0], n.Books[0] = n.Keys[1], n.Books[1]
	}
	n.Keys[1], n.Books[1] = 0, 0
	n.NumKeys--
}

// shiftLeft drops the leftmost key and child of a two-key node.
func (n *Node) shiftLeft() {
	n.Keys[0], n.Books[0] = n.Keys[1], n.Books[1]
	n.Keys[1], n.Books[1] = 0, 0
	n.Children[0], n.Children[1] = n.Children[1], n.Children[2]
	n.Children[2] = NullOffset
	n.NumKeys = 1
}

// dropRight drops the rightmost key and child of a two-key node.
func (n *Node) dropRight() {
	n.Keys[1], n.Books[1] = 0, 0
	n.Children[2] = NullOffset
	n.NumKeys = 1
}

// removeKeyAndChild removes one key and one child pointer, shifting the
// remainder left. A node emptied this way keeps its sole child at
// Children[0].
func (n *Node) removeKeyAndChild(keyIdx, childIdx int) {
	if keyIdx == 0 {
		n.Keys[0], n.Books[0] = n.Keys[1], n.Books[1]
	}
	n.Keys[1], n.Books[1] = 0, 0
	for j := childIdx; j < 2; j++ {
		n.Children[j] = n.Children[j+1]
	}
	n.Children[2] = NullOffset
	n.NumKeys--
}
