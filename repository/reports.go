package repository

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/emzola/circulation/data"
)

// topBooksLimit caps the top borrowed books on the dashboard.
const topBooksLimit = 5

type reports interface {
	GetDashboardStats(ctx context.Context, now time.Time) (*data.DashboardStats, error)
}

// GetDashboardStats aggregates book, member and loan counts, loans per month
// over the trailing twelve months and the most borrowed books.
func (r *repository) GetDashboardStats(ctx context.Context, now time.Time) (*data.DashboardStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	stats := &data.DashboardStats{GeneratedAt: now}
	err := r.getTotals(ctx, stats, now)
	if err != nil {
		return nil, err
	}
	stats.LoansByMonth, err = r.getLoansByMonth(ctx, now)
	if err != nil {
		return nil, err
	}
	stats.TopBooks, err = r.getTopBooks(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *repository) getTotals(ctx context.Context, stats *data.DashboardStats, now time.Time) error {
	query := `
		SELECT
			(SELECT count(*) FROM books),
			(SELECT COALESCE(sum(total_stock), 0) FROM books),
			(SELECT COALESCE(sum(available_stock), 0) FROM books),
			(SELECT count(*) FROM users WHERE role = 'member'),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'approved' AND return_date IS NULL),
			count(*) FILTER (WHERE status = 'approved' AND return_date IS NULL AND due_date < $1),
			count(*) FILTER (WHERE status = 'completed')
		FROM borrow_requests`
	return r.db.QueryRowContext(ctx, query, now).Scan(
		&stats.TotalBooks,
		&stats.TotalCopies,
		&stats.AvailableCopies,
		&stats.TotalMembers,
		&stats.PendingRequests,
		&stats.ActiveLoans,
		&stats.OverdueLoans,
		&stats.CompletedLoans,
	)
}

// getLoansByMonth counts borrow requests by the month they were placed.
// Months without requests are omitted.
func (r *repository) getLoansByMonth(ctx context.Context, now time.Time) ([]data.MonthlyCount, error) {
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	query, args, err := dialect.From("borrow_requests").
		Select(
			goqu.L("to_char(date_trunc('month', request_date), 'YYYY-MM')").As("month"),
			goqu.COUNT(goqu.Star()),
		).
		Where(goqu.C("request_date").Gte(since)).
		GroupBy(goqu.C("month")).
		Order(goqu.C("month").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	months := []data.MonthlyCount{}
	for rows.Next() {
		var month data.MonthlyCount
		if err := rows.Scan(&month.Month, &month.Count); err != nil {
			return nil, err
		}
		months = append(months, month)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return months, nil
}

// getTopBooks ranks books by approved and completed loans.
func (r *repository) getTopBooks(ctx context.Context) ([]data.BookLoanCount, error) {
	query, args, err := dialect.From(goqu.T("borrow_requests").As("br")).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id")))).
		Select(goqu.I("b.id"), goqu.I("b.title"), goqu.COUNT(goqu.Star()).As("loans")).
		Where(goqu.I("br.status").In(string(data.StatusApproved), string(data.StatusCompleted))).
		GroupBy(goqu.I("b.id"), goqu.I("b.title")).
		Order(goqu.C("loans").Desc(), goqu.I("b.id").Asc()).
		Limit(topBooksLimit).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	books := []data.BookLoanCount{}
	for rows.Next() {
		var book data.BookLoanCount
		if err := rows.Scan(&book.BookID, &book.Title, &book.Count); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}
