package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

// queryTimeout bounds every statement the repository issues.
const queryTimeout = 3 * time.Second

// dialect builds the dynamic list and report queries.
var dialect = goqu.Dialect("postgres")

type Repository interface {
	books
	users
	borrowRequests
	reports
	tokens
}

// Repository defines the app's repository layer.
type repository struct {
	db *sql.DB
}

// New creates a new instance of Repository.
func New(db *sql.DB) *repository {
	return &repository{db: db}
}

// count runs a single-value count query. List totals come from here rather
// than a window over the page, which is empty past the last page.
func (r *repository) count(ctx context.Context, query string, args ...any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var total int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}
