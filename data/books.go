package data

import (
	"time"

	"github.com/emzola/circulation/internal/validator"
)

const (
	BookStatusAvailable = "available"
	BookStatusBorrowed  = "borrowed"
	BookStatusDamaged   = "damaged"
	BookStatusLost      = "lost"
)

// Book defines a book model. AvailableStock never exceeds TotalStock and is
// only moved by approvals and returns on the loan ledger.
type Book struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	Isbn           string    `json:"isbn,omitempty"`
	Category       string    `json:"category,omitempty"`
	Publisher      string    `json:"publisher,omitempty"`
	Year           int32     `json:"year,omitempty"`
	TotalStock     int32     `json:"total_stock"`
	AvailableStock int32     `json:"available_stock"`
	Status         string    `json:"status"`
	CoverPath      string    `json:"cover_path,omitempty"`
	Version        int32     `json:"-"`
}

// BookSummary is the snapshot of a book joined onto borrow requests.
type BookSummary struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Isbn   string `json:"isbn,omitempty"`
}

// Summary returns the book's joinable snapshot.
func (b *Book) Summary() *BookSummary {
	return &BookSummary{ID: b.ID, Title: b.Title, Author: b.Author, Isbn: b.Isbn}
}

// Borrowable reports whether a new borrow request may be placed for the book.
func (b *Book) Borrowable() bool {
	return b.AvailableStock > 0 && b.Status == BookStatusAvailable
}

func ValidateBookStatus(v *validator.Validator, status string) {
	v.Check(validator.PermittedValue(status, BookStatusAvailable, BookStatusBorrowed, BookStatusDamaged, BookStatusLost),
		"status", "must be one of available, borrowed, damaged or lost")
}

func ValidateBook(v *validator.Validator, book *Book) {
	v.Check(book.Title != "", "title", "must be provided")
	v.Check(len(book.Title) <= 500, "title", "must not be more than 500 bytes long")
	v.Check(book.Author != "", "author", "must be provided")
	v.Check(len(book.Author) <= 500, "author", "must not be more than 500 bytes long")
	v.Check(len(book.Isbn) <= 17, "isbn", "must not be more than 17 characters")
	v.Check(book.Year >= 0, "year", "must not be negative")
	v.Check(book.Year <= int32(time.Now().Year()), "year", "must not be in the future")
	v.Check(book.TotalStock >= 0, "total_stock", "must not be negative")
	v.Check(book.AvailableStock >= 0, "available_stock", "must not be negative")
	v.Check(book.AvailableStock <= book.TotalStock, "available_stock", "must not exceed total_stock")
	ValidateBookStatus(v, book.Status)
}
