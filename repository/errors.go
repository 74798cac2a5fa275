package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrEditConflict    = errors.New("edit conflict")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrStockExhausted  = errors.New("insufficient available stock")
	ErrStockOverflow   = errors.New("available stock would exceed total stock")
	ErrRecordInUse     = errors.New("record is referenced by borrow requests")
)

// Postgres error codes the repository translates.
const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
)

// pqCode returns the SQLSTATE of a lib/pq error, or "" for any other error.
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
