package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/data/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func updateStatus(status string) dto.UpdateBookRequestBody {
	return dto.UpdateBookRequestBody{Status: &status}
}

func TestCreateBook(t *testing.T) {
	f := newFixture(t)
	book, err := f.svc.CreateBook(context.Background(), dto.CreateBookRequestBody{
		Title:      "The Left Hand of Darkness",
		Author:     "Ursula K. Le Guin",
		Year:       1969,
		TotalStock: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), book.TotalStock)
	assert.Equal(t, int32(4), book.AvailableStock)
	assert.Equal(t, data.BookStatusAvailable, book.Status)

	_, err = f.svc.CreateBook(context.Background(), dto.CreateBookRequestBody{TotalStock: -1})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Errors, "title")
	assert.Contains(t, validationErr.Errors, "author")
	assert.Contains(t, validationErr.Errors, "total_stock")
}

func TestUpdateBookStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "Dune", 2)
	f.approve(t, f.request(t, f.member.ID, book.ID).ID)

	updated, err := f.svc.UpdateBook(ctx, book.ID, dto.UpdateBookRequestBody{TotalStock: ptr(int32(5))})
	require.NoError(t, err)
	assert.Equal(t, int32(5), updated.TotalStock)
	assert.Equal(t, int32(4), updated.AvailableStock, "the copy on loan stays out")

	_, err = f.svc.UpdateBook(ctx, book.ID, dto.UpdateBookRequestBody{TotalStock: ptr(int32(0))})
	assert.ErrorIs(t, err, ErrStockBelowLoans)
	assert.ErrorIs(t, err, ErrConflict)

	updated, err = f.svc.UpdateBook(ctx, book.ID, dto.UpdateBookRequestBody{TotalStock: ptr(int32(1)), Title: ptr("Dune Messiah")})
	require.NoError(t, err)
	assert.Equal(t, int32(0), updated.AvailableStock)
	assert.Equal(t, "Dune Messiah", updated.Title)

	_, err = f.svc.UpdateBook(ctx, book.ID, updateStatus("shredded"))
	assert.ErrorIs(t, err, ErrFailedValidation)
	_, err = f.svc.UpdateBook(ctx, 999, updateStatus(data.BookStatusLost))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeleteBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unused := f.book(t, "Unused", 1)
	borrowed := f.book(t, "Borrowed", 1)
	f.request(t, f.member.ID, borrowed.ID)

	assert.NoError(t, f.svc.DeleteBook(ctx, unused.ID))
	assert.ErrorIs(t, f.svc.DeleteBook(ctx, unused.ID), ErrRecordNotFound)
	err := f.svc.DeleteBook(ctx, borrowed.ID)
	assert.ErrorIs(t, err, ErrBookInUse)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "Dune", 1)
	f.book(t, "Emma", 1)
	filters := data.Filters{Page: 1, PageSize: 20, Sort: "title", SortSafeList: []string{"title"}}

	books, metadata, err := f.svc.ListBooks(ctx, "dune", "", filters)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 1, metadata.TotalRecords)

	_, _, err = f.svc.ListBooks(ctx, "", "misplaced", filters)
	assert.ErrorIs(t, err, ErrFailedValidation)
	filters.Sort = "author"
	_, _, err = f.svc.ListBooks(ctx, "", "", filters)
	assert.ErrorIs(t, err, ErrFailedValidation)
}

type objectStoreSpy struct {
	key, contentType string
	size             int
}

func (s *objectStoreSpy) Upload(_ context.Context, key, contentType string, body []byte) (string, error) {
	s.key, s.contentType, s.size = key, contentType, len(body)
	return "https://covers.example.com/" + key, nil
}

func coverRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("cover", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	r := httptest.NewRequest(http.MethodPatch, "/v1/books/1/cover", body)
	r.Header.Set("Content-Type", writer.FormDataContentType())
	return r
}

func TestUpdateBookCover(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

	t.Run("stores png", func(t *testing.T) {
		store := &objectStoreSpy{}
		f := newFixture(t, WithObjectStore(store))
		book := f.book(t, "Dune", 1)

		updated, err := f.svc.UpdateBookCover(context.Background(), book.ID, coverRequest(t, "Cover.PNG", png))
		require.NoError(t, err)
		assert.Equal(t, "image/png", store.contentType)
		assert.Equal(t, len(png), store.size)
		assert.True(t, strings.HasPrefix(store.key, "bookcovers/"))
		assert.True(t, strings.HasSuffix(store.key, ".png"))
		assert.Equal(t, "https://covers.example.com/"+store.key, updated.CoverPath)
	})

	t.Run("rejects text", func(t *testing.T) {
		f := newFixture(t, WithObjectStore(&objectStoreSpy{}))
		book := f.book(t, "Dune", 1)
		_, err := f.svc.UpdateBookCover(context.Background(), book.ID, coverRequest(t, "cover.png", []byte("plain text")))
		assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	})

	t.Run("storage disabled", func(t *testing.T) {
		f := newFixture(t)
		book := f.book(t, "Dune", 1)
		_, err := f.svc.UpdateBookCover(context.Background(), book.ID, coverRequest(t, "cover.png", png))
		assert.ErrorIs(t, err, ErrStorageDisabled)
	})
}
