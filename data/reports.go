package data

import "time"

// DashboardStats aggregates circulation usage for the admin dashboard.
type DashboardStats struct {
	TotalBooks      int64           `json:"total_books"`
	TotalCopies     int64           `json:"total_copies"`
	AvailableCopies int64           `json:"available_copies"`
	TotalMembers    int64           `json:"total_members"`
	PendingRequests int64           `json:"pending_requests"`
	ActiveLoans     int64           `json:"active_loans"`
	OverdueLoans    int64           `json:"overdue_loans"`
	CompletedLoans  int64           `json:"completed_loans"`
	LoansByMonth    []MonthlyCount  `json:"loans_by_month"`
	TopBooks        []BookLoanCount `json:"top_books"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// MonthlyCount is the number of borrow requests placed in a calendar month (YYYY-MM).
type MonthlyCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// BookLoanCount is the number of approved or completed loans of a book.
type BookLoanCount struct {
	BookID int64  `json:"book_id"`
	Title  string `json:"title"`
	Count  int64  `json:"count"`
}
