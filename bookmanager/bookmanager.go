// Package bookmanager ties the book data file and the 2-3 tree index
// together: every mutation goes through the index first so the two files
// cannot disagree about which codes are live.
package bookmanager

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"BookDB/bookfile"
	"BookDB/twothreetree"
)

var (
	ErrBookExists   = errors.New("book code already registered")
	ErrBookNotFound = errors.New("book not found")
)

// Manager owns the two files of a store. Single-writer, like the layers
// beneath it.
type Manager struct {
	books *bookfile.File
	index *twothreetree.Tree
	log   *zap.Logger
}

// Open opens (or creates) the data file and the index file of a store.
func Open(dataPath, indexPath string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	books, err := bookfile.Open(dataPath, logger)
	if err != nil {
		return nil, err
	}
	index, err := twothreetree.Open(indexPath, logger)
	if err != nil {
		books.Close()
		return nil, err
	}
	return &Manager{books: books, index: index, log: logger}, nil
}

// Books exposes the underlying data file (inspection tooling).
func (m *Manager) Books() *bookfile.File { return m.books }

// Index exposes the underlying index (inspection tooling).
func (m *Manager) Index() *twothreetree.Tree { return m.index }

// Add registers a new book: duplicate check against the index, record write,
// then index insert of (code, record offset).
func (m *Manager) Add(book *bookfile.Book) error {
	if book.Code == bookfile.Tombstone {
		return fmt.Errorf("book code %d is reserved", book.Code)
	}

	exists, err := m.index.Contains(book.Code)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %d", ErrBookExists, book.Code)
	}

	off, err := m.books.Insert(book)
	if err != nil {
		return err
	}
	if err := m.index.Insert(book.Code, off); err != nil {
		return err
	}
	m.log.Info("book added", zap.Int32("code", book.Code), zap.Int64("offset", off))
	return nil
}

// Remove unregisters a book. The key leaves the index before the slot is
// freed, so an interruption leaks a slot instead of leaving the index
// pointing at recycled data.
func (m *Manager) Remove(code int32) error {
	off, err := m.index.Search(code)
	if errors.Is(err, twothreetree.ErrKeyNotFound) {
		return fmt.Errorf("%w: %d", ErrBookNotFound, code)
	}
	if err != nil {
		return err
	}

	if err := m.index.Delete(code); err != nil {
		return err
	}
	if err := m.books.Delete(off); err != nil {
		return err
	}
	m.log.Info("book removed", zap.Int32("code", code), zap.Int64("offset", off))
	return nil
}

// Get returns the book registered under code.
func (m *Manager) Get(code int32) (*bookfile.Book, error) {
	off, err := m.index.Search(code)
	if errors.Is(err, twothreetree.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrBookNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return m.books.Read(off)
}

// RegisteredTitles returns the number of distinct registered books, counted
// from the index.
func (m *Manager) RegisteredTitles() (int, error) {
	return m.index.Count()
}

// TotalStock sums the stock of every live record.
func (m *Manager) TotalStock() (int64, error) {
	var total int64
	err := m.books.Scan(func(_ int64, b *bookfile.Book) error {
		total += int64(b.Stock)
		return nil
	})
	return total, err
}

// SearchByAuthor returns all live books by author, case-insensitively.
func (m *Manager) SearchByAuthor(author string) ([]*bookfile.Book, error) {
	return m.scanMatching(func(b *bookfile.Book) bool {
		return strings.EqualFold(b.Author, author)
	})
}

// SearchByTitle returns all live books with the given title,
// case-insensitively.
func (m *Manager) SearchByTitle(title string) ([]*bookfile.Book, error) {
	return m.scanMatching(func(b *bookfile.Book) bool {
		return strings.EqualFold(b.Title, title)
	})
}

func (m *Manager) scanMatching(match func(*bookfile.Book) bool) ([]*bookfile.Book, error) {
	var out []*bookfile.Book
	err := m.books.Scan(func(_ int64, b *bookfile.Book) error {
		if match(b) {
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List writes a table of every live book to w, in slot order.
func (m *Manager) List(w io.Writer) error {
	fmt.Fprintf(w, "%-8s %-38s %-30s %-8s\n", "Code", "Title", "Author", "Stock")
	count := 0
	err := m.books.Scan(func(_ int64, b *bookfile.Book) error {
		title := b.Title
		if len(title) > 38 {
			title = title[:38]
		}
		author := b.Author
		if len(author) > 30 {
			author = author[:30]
		}
		fmt.Fprintf(w, "%-8d %-38s %-30s %-8d\n", b.Code, title, author, b.Stock)
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Fprintln(w, "(no books)")
	}
	return nil
}

// Close closes both files, reporting the first error.
func (m *Manager) Close() error {
	errIdx := m.index.Close()
	errBooks := m.books.Close()
	if errIdx != nil {
		return errIdx
	}
	return errBooks
}
