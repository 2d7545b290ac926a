package twothreetree

// promoted carries the key/record pair pushed up by a child split, together
// with the offset of the newly created right sibling.
type promoted struct {
	key   int32
	book  int64
	right int64
}

// Insert indexes key with its record offset. Duplicate keys are rejected
// with ErrDuplicateKey. Splits propagate upward; the height grows only when
// the root itself splits.
func (t *Tree) Insert(key int32, book int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return ErrFileClosed
	}

	if t.hdr.Root == NullOffset {
		off, err := t.createNode(newLeaf(key, book))
		if err != nil {
			return err
		}
		return t.setRoot(off)
	}

	p, err := t.insertAt(t.hdr.Root, key, book)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	// root split: the old root and the promoted sibling become the two
	// children of a fresh root
	root := &Node{
		NumKeys:  1,
		Keys:     [2]int32{p.key, 0},
		Books:    [2]int64{p.book, 0},
		Children: [3]int64{t.hdr.Root, p.right, NullOffset},
	}
	off, err := t.createNode(root)
	if err != nil {
		return err
	}
	return t.setRoot(off)
}

// insertAt inserts (key, book) into the subtree rooted at off and returns a
// non-nil promotion when the node at off had to split.
func (t *Tree) insertAt(off int64, key int32, book int64) (*promoted, error) {
	n, err := t.loadNode(off)
	if err != nil {
		return nil, err
	}
	if _, ok := n.find(key); ok {
		return nil, ErrDuplicateKey
	}

	if n.Leaf() {
		if n.NumKeys == 1 {
			if key < n.Keys[0] {
				n.Keys[1], n.Books[1] = n.Keys[0], n.Books[0]
				n.Keys[0], n.Books[0] = key, book
			} else {
				n.Keys[1], n.Books[1] = key, book
			}
			n.NumKeys = 2
			return nil, t.saveNode(off, n)
		}
		return t.splitLeaf(off, n, key, book)
	}

	ci := n.branch(key)
	p, err := t.insertAt(n.Children[ci], key, book)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	if n.NumKeys == 1 {
		// absorb the promotion; the new sibling slots in next to the
		// child that split
		if ci == 0 {
			n.Keys[1], n.Books[1] = n.Keys[0], n.Books[0]
			n.Keys[0], n.Books[0] = p.key, p.book
			n.Children[2] = n.Children[1]
			n.Children[1] = p.right
		} else {
			n.Keys[1], n.Books[1] = p.key, p.book
			n.Children[2] = p.right
		}
		n.NumKeys = 2
		return nil, t.saveNode(off, n)
	}
	return t.splitInternal(off, n, ci, p)
}

// splitLeaf partitions the leaf's two keys and the incoming one: the
// smallest stays at off, the middle is promoted, the largest moves into a
// new sibling. The sibling is written before the shrunken leaf.
func (t *Tree) splitLeaf(off int64, n *Node, key int32, book int64) (*promoted, error) {
	var left, mid, right struct {
		key  int32
		book int64
	}
	switch {
	case key < n.Keys[0]:
		left.key, left.book = key, book
		mid.key, mid.book = n.Keys[0], n.Books[0]
		right.key, right.book = n.Keys[1], n.Books[1]
	case key < n.Keys[1]:
		left.key, left.book = n.Keys[0], n.Books[0]
		mid.key, mid.book = key, book
		right.key, right.book = n.Keys[1], n.Books[1]
	default:
		left.key, left.book = n.Keys[0], n.Books[0]
		mid.key, mid.book = n.Keys[1], n.Books[1]
		right.key, right.book = key, book
	}

	rightOff, err := t.createNode(newLeaf(right.key, right.book))
	if err != nil {
		return nil, err
	}

	if err := t.saveNode(off, newLeaf(left.key, left.book)); err != nil {
		return nil, err
	}
	return &promoted{key: mid.key, book: mid.book, right: rightOff}, nil
}

// splitInternal splits a two-key internal node absorbing a promotion from
// child ci. The kept node keeps offset off; the new right sibling takes the
// upper key and the two upper children.
func (t *Tree) splitInternal(off int64, n *Node, ci int, p *promoted) (*promoted, error) {
	var left, right Node
	var mid promoted
	left.NumKeys, right.NumKeys = 1, 1

	switch ci {
	case 0:
		// promoted key is the smallest of the three
		left.Keys[0], left.Books[0] = p.key, p.book
		left.Children = [3]int64{n.Children[0], p.right, NullOffset}
		mid.key, mid.book = n.Keys[0], n.Books[0]
		right.Keys[0], right.Books[0] = n.Keys[1], n.Books[1]
		right.Children = [3]int64{n.Children[1], n.Children[2], NullOffset}
	case 1:
		// promoted key lands between the node's two keys
		left.Keys[0], left.Books[0] = n.Keys[0], n.Books[0]
		left.Children = [3]int64{n.Children[0], n.Children[1], NullOffset}
		mid.key, mid.book = p.key, p.book
		right.Keys[0], right.Books[0] = n.Keys[1], n.Books[1]
		right.Children = [3]int64{p.right, n.Children[2], NullOffset}
	default:
		// promoted key is the largest
		left.Keys[0], left.Books[0] = n.Keys[0], n.Books[0]
		left.Children = [3]int64{n.Children[0], n.Children[1], NullOffset}
		mid.key, mid.book = n.Keys[1], n.Books[1]
		right.Keys[0], right.Books[0] = p.key, p.book
		right.Children = [3]int64{n.Children[2], p.right, NullOffset}
	}

	rightOff, err := t.createNode(&right)
	if err != nil {
		return nil, err
	}
	if err := t.saveNode(off, &left); err != nil {
		return nil, err
	}
	mid.right = rightOff
	return &mid, nil
}
