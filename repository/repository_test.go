package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/emzola/circulation/data"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a disposable PostgreSQL database named by
// CIRCULATION_TEST_DSN. Every run drops and recreates the schema.
func newTestRepository(t *testing.T) *repository {
	t.Helper()
	dsn := os.Getenv("CIRCULATION_TEST_DSN")
	if dsn == "" {
		t.Skip("CIRCULATION_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`DROP TABLE IF EXISTS tokens, borrow_requests, books, users CASCADE`)
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join("..", "migrations", "*.up.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, file := range files {
		stmt, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = db.Exec(string(stmt))
		require.NoError(t, err, file)
	}
	return New(db)
}

func seedUser(t *testing.T, r *repository, username, role string) *data.User {
	t.Helper()
	user := &data.User{Username: username, Name: username, Email: username + "@example.com", Role: role}
	require.NoError(t, user.Password.Set("pa55word1234"))
	require.NoError(t, r.CreateUser(context.Background(), user))
	return user
}

func seedBook(t *testing.T, r *repository, title string, stock int32) *data.Book {
	t.Helper()
	book := &data.Book{Title: title, Author: "Author", TotalStock: stock, AvailableStock: stock, Status: data.BookStatusAvailable}
	require.NoError(t, r.CreateBook(context.Background(), book))
	return book
}

func newPending(memberID, bookID int64) *data.BorrowRequest {
	return &data.BorrowRequest{
		MemberID:    memberID,
		BookID:      bookID,
		RequestDate: time.Now().UTC(),
		Status:      data.StatusPending,
	}
}

func TestBorrowRequestLifecycle(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	admin := seedUser(t, r, "admin", data.RoleAdmin)
	member := seedUser(t, r, "member", data.RoleMember)
	book := seedBook(t, r, "Dune", 1)

	req := newPending(member.ID, book.ID)
	require.NoError(t, r.CreateBorrowRequest(ctx, req))
	assert.Equal(t, ErrDuplicateRecord, r.CreateBorrowRequest(ctx, newPending(member.ID, book.ID)))

	require.NoError(t, req.Approve(&admin.ID, time.Now().UTC(), data.DefaultLoanPeriod))
	require.NoError(t, r.UpdateBorrowRequest(ctx, req, data.StatusPending, -1))
	got, err := r.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), got.AvailableStock)

	active, err := r.GetActiveLoansForMember(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, admin.ID, active[0].Approver.ID)
	assert.Equal(t, "Dune", active[0].Book.Title)

	require.NoError(t, req.Complete(time.Now().UTC()))
	require.NoError(t, r.UpdateBorrowRequest(ctx, req, data.StatusApproved, 1))
	got, err = r.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.AvailableStock)

	// The pair is free again once the loan is completed.
	require.NoError(t, r.CreateBorrowRequest(ctx, newPending(member.ID, book.ID)))
}

func TestUpdateBorrowRequestStockGuard(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	admin := seedUser(t, r, "admin", data.RoleAdmin)
	alice := seedUser(t, r, "alice", data.RoleMember)
	bob := seedUser(t, r, "bob", data.RoleMember)
	book := seedBook(t, r, "Emma", 1)

	first := newPending(alice.ID, book.ID)
	second := newPending(bob.ID, book.ID)
	require.NoError(t, r.CreateBorrowRequest(ctx, first))
	require.NoError(t, r.CreateBorrowRequest(ctx, second))

	require.NoError(t, first.Approve(&admin.ID, time.Now().UTC(), data.DefaultLoanPeriod))
	require.NoError(t, r.UpdateBorrowRequest(ctx, first, data.StatusPending, -1))

	require.NoError(t, second.Approve(&admin.ID, time.Now().UTC(), data.DefaultLoanPeriod))
	assert.Equal(t, ErrStockExhausted, r.UpdateBorrowRequest(ctx, second, data.StatusPending, -1))

	stored, err := r.GetBorrowRequest(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, data.StatusPending, stored.Status)
	assert.Nil(t, stored.ApprovedDate)
}

func TestUpdateBorrowRequestCompareAndSet(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	admin := seedUser(t, r, "admin", data.RoleAdmin)
	member := seedUser(t, r, "member", data.RoleMember)
	book := seedBook(t, r, "Ulysses", 2)

	req := newPending(member.ID, book.ID)
	require.NoError(t, r.CreateBorrowRequest(ctx, req))
	stale := *req

	require.NoError(t, req.Approve(&admin.ID, time.Now().UTC(), data.DefaultLoanPeriod))
	require.NoError(t, r.UpdateBorrowRequest(ctx, req, data.StatusPending, -1))

	require.NoError(t, stale.Approve(&admin.ID, time.Now().UTC(), data.DefaultLoanPeriod))
	assert.Equal(t, ErrEditConflict, r.UpdateBorrowRequest(ctx, &stale, data.StatusPending, -1))

	got, err := r.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.AvailableStock)
}

func TestGetOverdueBorrowRequests(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	admin := seedUser(t, r, "admin", data.RoleAdmin)
	member := seedUser(t, r, "member", data.RoleMember)
	late := seedBook(t, r, "Late", 1)
	returned := seedBook(t, r, "Returned", 1)
	past := time.Now().UTC().Add(-30 * 24 * time.Hour)

	overdue := newPending(member.ID, late.ID)
	require.NoError(t, r.CreateBorrowRequest(ctx, overdue))
	require.NoError(t, overdue.Approve(&admin.ID, past, data.DefaultLoanPeriod))
	require.NoError(t, r.UpdateBorrowRequest(ctx, overdue, data.StatusPending, -1))

	done := newPending(member.ID, returned.ID)
	require.NoError(t, r.CreateBorrowRequest(ctx, done))
	require.NoError(t, done.Approve(&admin.ID, past, data.DefaultLoanPeriod))
	require.NoError(t, r.UpdateBorrowRequest(ctx, done, data.StatusPending, -1))
	require.NoError(t, done.Complete(time.Now().UTC()))
	require.NoError(t, r.UpdateBorrowRequest(ctx, done, data.StatusApproved, 1))

	got, err := r.GetOverdueBorrowRequests(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)

	stats, err := r.GetDashboardStats(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalBooks)
	assert.Equal(t, int64(1), stats.OverdueLoans)
	assert.Equal(t, int64(1), stats.CompletedLoans)
	assert.Len(t, stats.TopBooks, 2)
}

func TestGetAllBorrowRequestsFilters(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	alice := seedUser(t, r, "alice", data.RoleMember)
	bob := seedUser(t, r, "bob", data.RoleMember)
	for _, title := range []string{"A", "B", "C"} {
		book := seedBook(t, r, title, 1)
		require.NoError(t, r.CreateBorrowRequest(ctx, newPending(alice.ID, book.ID)))
		require.NoError(t, r.CreateBorrowRequest(ctx, newPending(bob.ID, book.ID)))
	}
	filters := data.Filters{Page: 1, PageSize: 2, Sort: "id", SortSafeList: []string{"id"}}

	got, metadata, err := r.GetAllBorrowRequests(ctx, data.BorrowRequestFilter{MemberID: &alice.ID}, filters)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 3, metadata.TotalRecords)
	assert.Equal(t, 2, metadata.LastPage)
	for _, req := range got {
		assert.Equal(t, alice.ID, req.MemberID)
		assert.Nil(t, req.Approver)
	}

	pastEnd := data.Filters{Page: 3, PageSize: 2, Sort: "id", SortSafeList: []string{"id"}}
	got, metadata, err = r.GetAllBorrowRequests(ctx, data.BorrowRequestFilter{MemberID: &alice.ID}, pastEnd)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 3, metadata.TotalRecords)
	assert.Equal(t, 2, metadata.LastPage)
	assert.Equal(t, 3, metadata.CurrentPage)

	status := data.StatusApproved
	got, metadata, err = r.GetAllBorrowRequests(ctx, data.BorrowRequestFilter{Status: &status}, filters)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, metadata.TotalRecords)
}

func TestListTotalsPastLastPage(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		seedUser(t, r, name, data.RoleMember)
		seedBook(t, r, name, 1)
	}
	filters := data.Filters{Page: 3, PageSize: 2, Sort: "id", SortSafeList: []string{"id"}}

	users, metadata, err := r.GetAllUsers(ctx, "", data.RoleMember, filters)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 3, metadata.TotalRecords)
	assert.Equal(t, 2, metadata.LastPage)

	books, metadata, err := r.GetAllBooks(ctx, "", "", filters)
	require.NoError(t, err)
	assert.Empty(t, books)
	assert.Equal(t, 3, metadata.TotalRecords)
	assert.Equal(t, 2, metadata.LastPage)
}

func TestDeleteUserWithActiveRequest(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	member := seedUser(t, r, "member", data.RoleMember)
	idle := seedUser(t, r, "idle", data.RoleMember)
	book := seedBook(t, r, "Persuasion", 1)
	require.NoError(t, r.CreateBorrowRequest(ctx, newPending(member.ID, book.ID)))

	assert.Equal(t, ErrRecordInUse, r.DeleteUser(ctx, member.ID))
	assert.Equal(t, ErrRecordInUse, r.DeleteBook(ctx, book.ID))
	assert.NoError(t, r.DeleteUser(ctx, idle.ID))
	assert.Equal(t, ErrRecordNotFound, r.DeleteUser(ctx, idle.ID))
}

func TestUpdateBookStockDelta(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	book := seedBook(t, r, "Middlemarch", 2)
	require.NoError(t, r.DecrementAvailableStock(ctx, book.ID))

	require.NoError(t, r.UpdateBook(ctx, book, 3))
	assert.Equal(t, int32(5), book.TotalStock)
	assert.Equal(t, int32(4), book.AvailableStock)

	assert.Equal(t, ErrStockExhausted, r.UpdateBook(ctx, book, -5))
	require.NoError(t, r.IncrementAvailableStock(ctx, book.ID))
	assert.Equal(t, ErrStockOverflow, r.IncrementAvailableStock(ctx, book.ID))
	assert.Equal(t, ErrRecordNotFound, r.DecrementAvailableStock(ctx, book.ID+100))
}

func TestTokens(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()
	alice := seedUser(t, r, "alice", data.RoleMember)

	live, err := r.CreateNewToken(ctx, alice.ID, time.Hour, data.ScopeAuthentication)
	require.NoError(t, err)
	expired, err := r.CreateNewToken(ctx, alice.ID, -time.Hour, data.ScopeAuthentication)
	require.NoError(t, err)

	user, err := r.GetUserForToken(ctx, data.ScopeAuthentication, live.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	_, err = r.GetUserForToken(ctx, data.ScopeAuthentication, expired.Plaintext)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	n, err := r.DeleteExpiredTokens(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, r.DeleteAllTokensForUser(ctx, data.ScopeAuthentication, alice.ID))
	_, err = r.GetUserForToken(ctx, data.ScopeAuthentication, live.Plaintext)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
