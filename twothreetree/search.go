package twothreetree

// Search descends from the root and returns the record offset paired with
// key, or ErrKeyNotFound once a leaf is reached without a match.
func (t *Tree) Search(key int32) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.f == nil {
		return NullOffset, ErrFileClosed
	}
	if t.hdr.Root == NullOffset {
		return NullOffset, ErrKeyNotFound
	}

	off := t.hdr.Root
	for {
		n, err := t.loadNode(off)
		if err != nil {
			return NullOffset, err
		}
		if i, ok := n.find(key); ok {
			return n.Books[i], nil
		}
		if n.Leaf() {
			return NullOffset, ErrKeyNotFound
		}
		off = n.Children[n.branch(key)]
	}
}

// Contains reports whether key is indexed.
func (t *Tree) Contains(key int32) (bool, error) {
	_, err := t.Search(key)
	if err == ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
