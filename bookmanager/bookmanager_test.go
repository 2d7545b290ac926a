package bookmanager

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BookDB/bookfile"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	mgr, err := Open(filepath.Join(dir, "books.dat"), filepath.Join(dir, "books.idx"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func book(code int32, title, author string, stock int32) *bookfile.Book {
	return &bookfile.Book{
		Code:      code,
		Title:     title,
		Author:    author,
		Publisher: "Pearson",
		Edition:   2,
		Year:      2020,
		Price:     49.90,
		Stock:     stock,
	}
}

func TestAddAndGet(t *testing.T) {
	mgr := openTestManager(t)

	want := book(101, "Clean Code", "Robert C. Martin", 4)
	require.NoError(t, mgr.Add(want))

	got, err := mgr.Get(101)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAddRejectsDuplicateCode(t *testing.T) {
	mgr := openTestManager(t)

	require.NoError(t, mgr.Add(book(101, "Clean Code", "Robert C. Martin", 4)))
	err := mgr.Add(book(101, "Another Title", "Someone Else", 1))
	require.ErrorIs(t, err, ErrBookExists)

	// the original record must be intact
	got, err := mgr.Get(101)
	require.NoError(t, err)
	assert.Equal(t, "Clean Code", got.Title)
}

func TestAddRejectsReservedCode(t *testing.T) {
	mgr := openTestManager(t)
	require.Error(t, mgr.Add(book(-1, "Bad", "Bad", 0)))
}

func TestRemove(t *testing.T) {
	mgr := openTestManager(t)

	require.NoError(t, mgr.Add(book(101, "Clean Code", "Robert C. Martin", 4)))
	require.NoError(t, mgr.Add(book(102, "The Mythical Man-Month", "Frederick Brooks", 2)))

	require.NoError(t, mgr.Remove(101))

	_, err := mgr.Get(101)
	require.ErrorIs(t, err, ErrBookNotFound)

	got, err := mgr.Get(102)
	require.NoError(t, err)
	assert.Equal(t, int32(102), got.Code)

	require.ErrorIs(t, mgr.Remove(101), ErrBookNotFound)
}

// Removing a book frees its slot, and the next Add lands in it.
func TestRemoveRecyclesSlot(t *testing.T) {
	mgr := openTestManager(t)

	require.NoError(t, mgr.Add(book(1, "A", "a", 1)))
	require.NoError(t, mgr.Add(book(2, "B", "b", 1)))
	require.NoError(t, mgr.Add(book(3, "C", "c", 1)))
	grown := mgr.Books().Header().FirstEmpty

	require.NoError(t, mgr.Remove(2))
	require.NoError(t, mgr.Add(book(4, "D", "d", 1)))

	assert.Equal(t, grown, mgr.Books().Header().FirstEmpty, "data file grew instead of reusing the freed slot")

	got, err := mgr.Get(4)
	require.NoError(t, err)
	assert.Equal(t, "D", got.Title)
}

func TestTotals(t *testing.T) {
	mgr := openTestManager(t)

	require.NoError(t, mgr.Add(book(1, "A", "a", 3)))
	require.NoError(t, mgr.Add(book(2, "B", "b", 5)))
	require.NoError(t, mgr.Add(book(3, "C", "c", 7)))
	require.NoError(t, mgr.Remove(2))

	titles, err := mgr.RegisteredTitles()
	require.NoError(t, err)
	assert.Equal(t, 2, titles)

	stock, err := mgr.TotalStock()
	require.NoError(t, err)
	assert.Equal(t, int64(10), stock)
}

func TestSearchByAuthorIsCaseInsensitive(t *testing.T) {
	mgr := openTestManager(t)

	require.NoError(t, mgr.Add(book(1, "SICP", "Abelson", 1)))
	require.NoError(t, mgr.Add(book(2, "HtDP", "Felleisen", 1)))
	require.NoError(t, mgr.Add(book(3, "Lisp in Small Pieces", "abelson", 1)))

	found, err := mgr.SearchByAuthor("ABELSON")
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = mgr.SearchByTitle("sicp")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int32(1), found[0].Code)
}

func TestListSkipsRemovedBooks(t *testing.T) {
	mgr := openTestManager(t)

	require.NoError(t, mgr.Add(book(1, "Kept", "a", 1)))
	require.NoError(t, mgr.Add(book(2, "Dropped", "b", 1)))
	require.NoError(t, mgr.Remove(2))

	var buf bytes.Buffer
	require.NoError(t, mgr.List(&buf))
	assert.Contains(t, buf.String(), "Kept")
	assert.NotContains(t, buf.String(), "Dropped")
}

func TestManagerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "books.dat")
	indexPath := filepath.Join(dir, "books.idx")

	mgr, err := Open(dataPath, indexPath, nil)
	require.NoError(t, err)
	for code := int32(1); code <= 20; code++ {
		require.NoError(t, mgr.Add(book(code, "T", "a", 1)))
	}
	require.NoError(t, mgr.Remove(7))
	require.NoError(t, mgr.Close())

	mgr, err = Open(dataPath, indexPath, nil)
	require.NoError(t, err)
	defer mgr.Close()

	require.NoError(t, mgr.Index().Validate())
	_, err = mgr.Get(7)
	require.ErrorIs(t, err, ErrBookNotFound)
	got, err := mgr.Get(13)
	require.NoError(t, err)
	assert.Equal(t, int32(13), got.Code)
}
