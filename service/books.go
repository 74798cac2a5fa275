package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/data/dto"
	"github.com/emzola/circulation/internal/validator"
	"github.com/emzola/circulation/repository"
)

// maxCoverSize is the largest cover image accepted, in bytes.
const maxCoverSize = 5 << 20

type books interface {
	CreateBook(ctx context.Context, requestBody dto.CreateBookRequestBody) (*data.Book, error)
	GetBook(ctx context.Context, bookID int64) (*data.Book, error)
	ListBooks(ctx context.Context, search, status string, filters data.Filters) ([]*data.Book, data.Metadata, error)
	UpdateBook(ctx context.Context, bookID int64, requestBody dto.UpdateBookRequestBody) (*data.Book, error)
	UpdateBookCover(ctx context.Context, bookID int64, r *http.Request) (*data.Book, error)
	DeleteBook(ctx context.Context, bookID int64) error
}

// CreateBook service creates a new book with every copy available.
func (s *service) CreateBook(ctx context.Context, requestBody dto.CreateBookRequestBody) (*data.Book, error) {
	book := &data.Book{
		Title:          requestBody.Title,
		Author:         requestBody.Author,
		Isbn:           requestBody.Isbn,
		Category:       requestBody.Category,
		Publisher:      requestBody.Publisher,
		Year:           requestBody.Year,
		TotalStock:     requestBody.TotalStock,
		AvailableStock: requestBody.TotalStock,
		Status:         data.BookStatusAvailable,
	}
	v := validator.New()
	if data.ValidateBook(v, book); !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	err := s.repo.CreateBook(ctx, book)
	if err != nil {
		return nil, err
	}
	s.invalidateDashboard()
	return book, nil
}

// GetBook service retrieves the details of a book.
func (s *service) GetBook(ctx context.Context, bookID int64) (*data.Book, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return book, nil
}

// ListBooks service retrieves a list of paginated books. The list can be searched, filtered and sorted.
func (s *service) ListBooks(ctx context.Context, search, status string, filters data.Filters) ([]*data.Book, data.Metadata, error) {
	v := validator.New()
	data.ValidateFilters(v, filters)
	if status != "" {
		data.ValidateBookStatus(v, status)
	}
	if !v.Valid() {
		return nil, data.Metadata{}, failedValidation(v.Errors)
	}
	return s.repo.GetAllBooks(ctx, search, status, filters)
}

// UpdateBook service updates the details of a specific book. A new total_stock
// shifts available_stock by the same amount; it may not drop below the copies on loan.
func (s *service) UpdateBook(ctx context.Context, bookID int64, requestBody dto.UpdateBookRequestBody) (*data.Book, error) {
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	if requestBody.Title != nil {
		book.Title = *requestBody.Title
	}
	if requestBody.Author != nil {
		book.Author = *requestBody.Author
	}
	if requestBody.Isbn != nil {
		book.Isbn = *requestBody.Isbn
	}
	if requestBody.Category != nil {
		book.Category = *requestBody.Category
	}
	if requestBody.Publisher != nil {
		book.Publisher = *requestBody.Publisher
	}
	if requestBody.Year != nil {
		book.Year = *requestBody.Year
	}
	if requestBody.Status != nil {
		book.Status = *requestBody.Status
	}
	var stockDelta int32
	if requestBody.TotalStock != nil {
		stockDelta = *requestBody.TotalStock - book.TotalStock
	}
	v := validator.New()
	v.Check(book.TotalStock+stockDelta >= 0, "total_stock", "must not be negative")
	if !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	if book.AvailableStock+stockDelta < 0 {
		return nil, ErrStockBelowLoans
	}
	book.TotalStock += stockDelta
	book.AvailableStock += stockDelta
	if data.ValidateBook(v, book); !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	if err := s.saveBook(ctx, book, stockDelta); err != nil {
		return nil, err
	}
	return book, nil
}

// UpdateBookCover service uploads a jpeg or png cover for a book to object
// storage and records its URL.
func (s *service) UpdateBookCover(ctx context.Context, bookID int64, r *http.Request) (*data.Book, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	err = r.ParseMultipartForm(maxCoverSize)
	if err != nil {
		var maxBytesError *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesError):
			return nil, ErrContentTooLarge
		default:
			return nil, ErrBadRequest
		}
	}
	file, fileHeader, err := r.FormFile("cover")
	if err != nil {
		return nil, ErrBadRequest
	}
	defer file.Close()
	if fileHeader.Size > maxCoverSize {
		return nil, ErrContentTooLarge
	}
	buffer, mtype, err := detectMimeType(file, fileHeader)
	if err != nil {
		return nil, err
	}
	if validMime := validator.Mime(mtype, "image/jpeg", "image/png"); !validMime {
		return nil, ErrUnsupportedMediaType
	}
	key, err := coverKey(book.ID, fileHeader.Filename)
	if err != nil {
		return nil, err
	}
	book.CoverPath, err = s.store.Upload(ctx, key, mtype.String(), buffer)
	if err != nil {
		return nil, err
	}
	if err := s.saveBook(ctx, book, 0); err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook service deletes a specific book.
func (s *service) DeleteBook(ctx context.Context, bookID int64) error {
	err := s.repo.DeleteBook(ctx, bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return ErrRecordNotFound
		case errors.Is(err, repository.ErrRecordInUse):
			return ErrBookInUse
		default:
			return err
		}
	}
	s.invalidateDashboard()
	return nil
}

func (s *service) saveBook(ctx context.Context, book *data.Book, stockDelta int32) error {
	err := s.repo.UpdateBook(ctx, book, stockDelta)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			return ErrEditConflict
		case errors.Is(err, repository.ErrStockExhausted):
			return ErrStockBelowLoans
		default:
			return err
		}
	}
	s.invalidateDashboard()
	return nil
}
