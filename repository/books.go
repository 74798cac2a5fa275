package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emzola/circulation/data"
)

type books interface {
	CreateBook(ctx context.Context, book *data.Book) error
	GetBook(ctx context.Context, ID int64) (*data.Book, error)
	GetAllBooks(ctx context.Context, search, status string, filters data.Filters) ([]*data.Book, data.Metadata, error)
	UpdateBook(ctx context.Context, book *data.Book, stockDelta int32) error
	DeleteBook(ctx context.Context, ID int64) error
	DecrementAvailableStock(ctx context.Context, bookID int64) error
	IncrementAvailableStock(ctx context.Context, bookID int64) error
}

// CreateBook creates a new book record.
func (r *repository) CreateBook(ctx context.Context, book *data.Book) error {
	query := `
		INSERT INTO books (title, author, isbn, category, publisher, year, total_stock, available_stock, status, cover_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at, version`
	args := []interface{}{
		book.Title,
		book.Author,
		book.Isbn,
		book.Category,
		book.Publisher,
		book.Year,
		book.TotalStock,
		book.AvailableStock,
		book.Status,
		book.CoverPath,
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.db.QueryRowContext(ctx, query, args...).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt, &book.Version)
}

// GetBook retrieves a book record.
func (r *repository) GetBook(ctx context.Context, ID int64) (*data.Book, error) {
	if ID < 1 {
		return nil, ErrRecordNotFound
	}
	query := `
		SELECT id, created_at, updated_at, title, author, isbn, category, publisher, year, total_stock, available_stock, status, cover_path, version
		FROM books
		WHERE id = $1`
	var book data.Book
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, ID).Scan(
		&book.ID,
		&book.CreatedAt,
		&book.UpdatedAt,
		&book.Title,
		&book.Author,
		&book.Isbn,
		&book.Category,
		&book.Publisher,
		&book.Year,
		&book.TotalStock,
		&book.AvailableStock,
		&book.Status,
		&book.CoverPath,
		&book.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &book, nil
}

// GetAllBooks retrieves a paginated list of books matching a full-text search
// over title, author and isbn, optionally narrowed by status.
func (r *repository) GetAllBooks(ctx context.Context, search, status string, filters data.Filters) ([]*data.Book, data.Metadata, error) {
	where := `
		WHERE (
			to_tsvector('simple', title) ||
			to_tsvector('simple', author) ||
			to_tsvector('simple', isbn)
			@@ plainto_tsquery('simple', $1) OR $1 = ''
		)
		AND (status = $2 OR $2 = '')`
	args := []interface{}{search, status}
	totalRecords, err := r.count(ctx, "SELECT count(*) FROM books"+where, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	query := fmt.Sprintf(`
		SELECT id, created_at, updated_at, title, author, isbn, category, publisher, year, total_stock, available_stock, status, cover_path, version
		FROM books`+where+`
		ORDER BY %s %s, id ASC
		LIMIT $3 OFFSET $4`,
		filters.SortColumn(), filters.SortDirection(),
	)
	args = append(args, filters.Limit(), filters.Offset())
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	defer rows.Close()
	books := []*data.Book{}
	for rows.Next() {
		var book data.Book
		err := rows.Scan(
			&book.ID,
			&book.CreatedAt,
			&book.UpdatedAt,
			&book.Title,
			&book.Author,
			&book.Isbn,
			&book.Category,
			&book.Publisher,
			&book.Year,
			&book.TotalStock,
			&book.AvailableStock,
			&book.Status,
			&book.CoverPath,
			&book.Version,
		)
		if err != nil {
			return nil, data.Metadata{}, err
		}
		books = append(books, &book)
	}
	if err = rows.Err(); err != nil {
		return nil, data.Metadata{}, err
	}
	metadata := data.CalculateMetadata(totalRecords, filters.Page, filters.PageSize)
	return books, metadata, nil
}

// UpdateBook updates a book record. Stock is not written from the book value:
// stockDelta is added to both total_stock and available_stock in place, so
// loans approved or returned since the book was read are never overwritten.
// The refreshed stock columns are scanned back into book.
func (r *repository) UpdateBook(ctx context.Context, book *data.Book, stockDelta int32) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, category = $4, publisher = $5, year = $6, status = $7, cover_path = $8,
			total_stock = total_stock + $9, available_stock = available_stock + $9,
			updated_at = NOW(), version = version + 1
		WHERE id = $10 AND version = $11
		RETURNING total_stock, available_stock, updated_at, version`
	args := []interface{}{
		book.Title,
		book.Author,
		book.Isbn,
		book.Category,
		book.Publisher,
		book.Year,
		book.Status,
		book.CoverPath,
		stockDelta,
		book.ID,
		book.Version,
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&book.TotalStock,
		&book.AvailableStock,
		&book.UpdatedAt,
		&book.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		case pqCode(err) == pqCheckViolation:
			return ErrStockExhausted
		default:
			return err
		}
	}
	return nil
}

// DeleteBook deletes a book record. Books with pending or approved requests,
// or with any loan history, cannot be deleted.
func (r *repository) DeleteBook(ctx context.Context, ID int64) error {
	if ID < 1 {
		return ErrRecordNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.runInTx(ctx, func(ctx context.Context, tx DBTX) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM books WHERE id = $1 FOR UPDATE`, ID).Scan(&id)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return ErrRecordNotFound
			default:
				return err
			}
		}
		var active bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM borrow_requests
				WHERE book_id = $1 AND status IN ('pending', 'approved')
			)`, ID).Scan(&active)
		if err != nil {
			return err
		}
		if active {
			return ErrRecordInUse
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, ID)
		if err != nil {
			if pqCode(err) == pqForeignKeyViolation {
				return ErrRecordInUse
			}
			return err
		}
		return nil
	})
}

// DecrementAvailableStock takes one copy of a book out of circulation.
func (r *repository) DecrementAvailableStock(ctx context.Context, bookID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return decrementStock(ctx, r.db, bookID)
}

// IncrementAvailableStock puts one copy of a book back into circulation.
func (r *repository) IncrementAvailableStock(ctx context.Context, bookID int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return incrementStock(ctx, r.db, bookID)
}

// decrementStock is a single guarded UPDATE: when no copy is available the
// row is left untouched and ErrStockExhausted is returned.
func decrementStock(ctx context.Context, q DBTX, bookID int64) error {
	query := `
		UPDATE books
		SET available_stock = available_stock - 1, updated_at = NOW()
		WHERE id = $1 AND available_stock > 0`
	return adjustStock(ctx, q, query, bookID, ErrStockExhausted)
}

// incrementStock is the inverse of decrementStock, bounded by total_stock.
func incrementStock(ctx context.Context, q DBTX, bookID int64) error {
	query := `
		UPDATE books
		SET available_stock = available_stock + 1, updated_at = NOW()
		WHERE id = $1 AND available_stock < total_stock`
	return adjustStock(ctx, q, query, bookID, ErrStockOverflow)
}

func adjustStock(ctx context.Context, q DBTX, query string, bookID int64, guardErr error) error {
	result, err := q.ExecContext(ctx, query, bookID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 1 {
		return nil
	}
	var exists bool
	err = q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRecordNotFound
	}
	return guardErr
}
