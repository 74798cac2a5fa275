// Package memrepo is an in-memory repository.Repository for tests. It keeps
// the storage guarantees the service relies on: unique usernames, one active
// request per member and book, guarded stock updates, compare-and-set status
// writes and restricted deletes.
package memrepo

import (
	"context"
	"crypto/sha256"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/repository"
)

type Repo struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*data.User
	books    map[int64]*data.Book
	requests map[int64]*data.BorrowRequest
	tokens   map[string]*data.Token
}

var _ repository.Repository = (*Repo)(nil)

func New() *Repo {
	return &Repo{
		users:    make(map[int64]*data.User),
		books:    make(map[int64]*data.Book),
		requests: make(map[int64]*data.BorrowRequest),
		tokens:   make(map[string]*data.Token),
	}
}

func (r *Repo) id() int64 {
	r.nextID++
	return r.nextID
}

// Users

func (r *Repo) CreateUser(_ context.Context, user *data.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return repository.ErrDuplicateRecord
		}
	}
	now := time.Now().UTC()
	user.ID = r.id()
	user.CreatedAt, user.UpdatedAt, user.Version = now, now, 1
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *Repo) GetUserByID(_ context.Context, ID int64) (*data.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[ID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	user := *u
	return &user, nil
}

func (r *Repo) GetUserByUsername(_ context.Context, username string) (*data.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			user := *u
			return &user, nil
		}
	}
	return nil, repository.ErrRecordNotFound
}

func (r *Repo) GetAllUsers(_ context.Context, search, role string, filters data.Filters) ([]*data.User, data.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	search = strings.ToLower(search)
	all := []*data.User{}
	for _, u := range r.users {
		if role != "" && u.Role != role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username+" "+u.Name+" "+u.Email), search) {
			continue
		}
		user := *u
		all = append(all, &user)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if filters.SortDirection() == "DESC" {
		reverse(all)
	}
	page, metadata := paginate(all, filters)
	return page, metadata, nil
}

func (r *Repo) UpdateUser(_ context.Context, user *data.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok || stored.Version != user.Version {
		return repository.ErrEditConflict
	}
	for _, u := range r.users {
		if u.ID != user.ID && u.Username == user.Username {
			return repository.ErrDuplicateRecord
		}
	}
	user.UpdatedAt = time.Now().UTC()
	user.Version++
	updated := *user
	r.users[user.ID] = &updated
	return nil
}

func (r *Repo) DeleteUser(_ context.Context, ID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[ID]; !ok {
		return repository.ErrRecordNotFound
	}
	for _, req := range r.requests {
		if req.MemberID == ID {
			return repository.ErrRecordInUse
		}
	}
	for _, req := range r.requests {
		if req.ApprovedBy != nil && *req.ApprovedBy == ID {
			req.ApprovedBy = nil
		}
	}
	delete(r.users, ID)
	for hash, t := range r.tokens {
		if t.UserID == ID {
			delete(r.tokens, hash)
		}
	}
	return nil
}

func (r *Repo) GetUserForToken(_ context.Context, tokenScope, tokenPlaintext string) (*data.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash := sha256.Sum256([]byte(tokenPlaintext))
	t, ok := r.tokens[string(hash[:])]
	if !ok || t.Scope != tokenScope || !t.Expiry.After(time.Now()) {
		return nil, repository.ErrRecordNotFound
	}
	u, ok := r.users[t.UserID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	user := *u
	return &user, nil
}

// Tokens

func (r *Repo) CreateNewToken(_ context.Context, userID int64, ttl time.Duration, scope string) (*data.Token, error) {
	token, err := repository.GenerateToken(userID, ttl, scope)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[string(token.Hash)] = token
	return token, nil
}

func (r *Repo) DeleteAllTokensForUser(_ context.Context, scope string, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, t := range r.tokens {
		if t.UserID == userID && t.Scope == scope {
			delete(r.tokens, hash)
		}
	}
	return nil
}

func (r *Repo) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, t := range r.tokens {
		if t.Expiry.Before(now) {
			delete(r.tokens, hash)
			n++
		}
	}
	return n, nil
}

// Books

func (r *Repo) CreateBook(_ context.Context, book *data.Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	book.ID = r.id()
	book.CreatedAt, book.UpdatedAt, book.Version = now, now, 1
	stored := *book
	r.books[book.ID] = &stored
	return nil
}

func (r *Repo) GetBook(_ context.Context, ID int64) (*data.Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[ID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	book := *b
	return &book, nil
}

func (r *Repo) GetAllBooks(_ context.Context, search, status string, filters data.Filters) ([]*data.Book, data.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	search = strings.ToLower(search)
	all := []*data.Book{}
	for _, b := range r.books {
		if status != "" && b.Status != status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.Title+" "+b.Author+" "+b.Isbn), search) {
			continue
		}
		book := *b
		all = append(all, &book)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if filters.SortDirection() == "DESC" {
		reverse(all)
	}
	page, metadata := paginate(all, filters)
	return page, metadata, nil
}

func (r *Repo) UpdateBook(_ context.Context, book *data.Book, stockDelta int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.books[book.ID]
	if !ok || stored.Version != book.Version {
		return repository.ErrEditConflict
	}
	total := stored.TotalStock + stockDelta
	available := stored.AvailableStock + stockDelta
	if available < 0 || available > total {
		return repository.ErrStockExhausted
	}
	book.TotalStock, book.AvailableStock = total, available
	book.UpdatedAt = time.Now().UTC()
	book.Version++
	updated := *book
	r.books[book.ID] = &updated
	return nil
}

func (r *Repo) DeleteBook(_ context.Context, ID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.books[ID]; !ok {
		return repository.ErrRecordNotFound
	}
	for _, req := range r.requests {
		if req.BookID == ID {
			return repository.ErrRecordInUse
		}
	}
	delete(r.books, ID)
	return nil
}

func (r *Repo) DecrementAvailableStock(_ context.Context, bookID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjustStock(bookID, -1)
}

func (r *Repo) IncrementAvailableStock(_ context.Context, bookID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjustStock(bookID, 1)
}

// adjustStock must be called with mu held.
func (r *Repo) adjustStock(bookID int64, delta int32) error {
	b, ok := r.books[bookID]
	if !ok {
		return repository.ErrRecordNotFound
	}
	switch {
	case delta < 0 && b.AvailableStock+delta < 0:
		return repository.ErrStockExhausted
	case delta > 0 && b.AvailableStock+delta > b.TotalStock:
		return repository.ErrStockOverflow
	}
	b.AvailableStock += delta
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// Borrow requests

func (r *Repo) CreateBorrowRequest(_ context.Context, req *data.BorrowRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[req.MemberID]; !ok {
		return repository.ErrRecordNotFound
	}
	if _, ok := r.books[req.BookID]; !ok {
		return repository.ErrRecordNotFound
	}
	for _, existing := range r.requests {
		if existing.MemberID == req.MemberID && existing.BookID == req.BookID && existing.Status.Active() {
			return repository.ErrDuplicateRecord
		}
	}
	now := time.Now().UTC()
	req.ID = r.id()
	req.CreatedAt, req.UpdatedAt, req.Version = now, now, 1
	stored := *req
	r.requests[req.ID] = &stored
	return nil
}

func (r *Repo) GetBorrowRequest(_ context.Context, ID int64) (*data.BorrowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[ID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	req := *stored
	return &req, nil
}

func (r *Repo) GetBorrowRequestForMember(_ context.Context, ID, memberID int64) (*data.BorrowRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[ID]
	if !ok || stored.MemberID != memberID {
		return nil, repository.ErrRecordNotFound
	}
	req := *stored
	return &req, nil
}

func (r *Repo) GetBorrowRequestWithDetails(_ context.Context, ID int64) (*data.BorrowRequestWithDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[ID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return r.details(stored), nil
}

func (r *Repo) GetAllBorrowRequests(_ context.Context, filter data.BorrowRequestFilter, filters data.Filters) ([]*data.BorrowRequestWithDetails, data.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.selectRequests(func(req *data.BorrowRequest) bool {
		if filter.MemberID != nil && req.MemberID != *filter.MemberID {
			return false
		}
		if filter.Status != nil && req.Status != *filter.Status {
			return false
		}
		return true
	})
	if filters.SortDirection() == "DESC" {
		reverse(all)
	}
	page, metadata := paginate(all, filters)
	return page, metadata, nil
}

func (r *Repo) GetOverdueBorrowRequests(_ context.Context, now time.Time) ([]*data.BorrowRequestWithDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectRequests(func(req *data.BorrowRequest) bool {
		return req.Overdue(now)
	}), nil
}

func (r *Repo) GetActiveLoansForMember(_ context.Context, memberID int64) ([]*data.BorrowRequestWithDetails, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectRequests(func(req *data.BorrowRequest) bool {
		return req.MemberID == memberID && req.Status == data.StatusApproved && req.ReturnDate == nil
	}), nil
}

// UpdateBorrowRequest applies the write and the stock change together or not at all.
func (r *Repo) UpdateBorrowRequest(_ context.Context, req *data.BorrowRequest, from data.BorrowStatus, stockDelta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[req.ID]
	if !ok || stored.Status != from || stored.Version != req.Version {
		return repository.ErrEditConflict
	}
	if stockDelta != 0 {
		if err := r.adjustStock(req.BookID, int32(stockDelta)); err != nil {
			return err
		}
	}
	req.UpdatedAt = time.Now().UTC()
	req.Version++
	updated := *req
	r.requests[req.ID] = &updated
	return nil
}

// Reports

func (r *Repo) GetDashboardStats(_ context.Context, now time.Time) (*data.DashboardStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &data.DashboardStats{GeneratedAt: now, LoansByMonth: []data.MonthlyCount{}, TopBooks: []data.BookLoanCount{}}
	for _, b := range r.books {
		stats.TotalBooks++
		stats.TotalCopies += int64(b.TotalStock)
		stats.AvailableCopies += int64(b.AvailableStock)
	}
	for _, u := range r.users {
		if u.Role == data.RoleMember {
			stats.TotalMembers++
		}
	}
	months := map[string]int64{}
	loans := map[int64]int64{}
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	for _, req := range r.requests {
		switch {
		case req.Status == data.StatusPending:
			stats.PendingRequests++
		case req.Status == data.StatusApproved && req.ReturnDate == nil:
			stats.ActiveLoans++
			if req.Overdue(now) {
				stats.OverdueLoans++
			}
		case req.Status == data.StatusCompleted:
			stats.CompletedLoans++
		}
		if !req.RequestDate.Before(since) {
			months[req.RequestDate.UTC().Format("2006-01")]++
		}
		if req.Status == data.StatusApproved || req.Status == data.StatusCompleted {
			loans[req.BookID]++
		}
	}
	for month, count := range months {
		stats.LoansByMonth = append(stats.LoansByMonth, data.MonthlyCount{Month: month, Count: count})
	}
	sort.Slice(stats.LoansByMonth, func(i, j int) bool { return stats.LoansByMonth[i].Month < stats.LoansByMonth[j].Month })
	for bookID, count := range loans {
		title := ""
		if b, ok := r.books[bookID]; ok {
			title = b.Title
		}
		stats.TopBooks = append(stats.TopBooks, data.BookLoanCount{BookID: bookID, Title: title, Count: count})
	}
	sort.Slice(stats.TopBooks, func(i, j int) bool {
		if stats.TopBooks[i].Count != stats.TopBooks[j].Count {
			return stats.TopBooks[i].Count > stats.TopBooks[j].Count
		}
		return stats.TopBooks[i].BookID < stats.TopBooks[j].BookID
	})
	if len(stats.TopBooks) > 5 {
		stats.TopBooks = stats.TopBooks[:5]
	}
	return stats, nil
}

// selectRequests must be called with mu held. Results are ordered by id.
func (r *Repo) selectRequests(keep func(*data.BorrowRequest) bool) []*data.BorrowRequestWithDetails {
	out := []*data.BorrowRequestWithDetails{}
	for _, req := range r.requests {
		if keep(req) {
			out = append(out, r.details(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// details must be called with mu held.
func (r *Repo) details(req *data.BorrowRequest) *data.BorrowRequestWithDetails {
	out := &data.BorrowRequestWithDetails{BorrowRequest: *req}
	if u, ok := r.users[req.MemberID]; ok {
		out.Member = u.Summary()
	}
	if b, ok := r.books[req.BookID]; ok {
		out.Book = b.Summary()
	}
	if req.ApprovedBy != nil {
		if u, ok := r.users[*req.ApprovedBy]; ok {
			out.Approver = u.Summary()
		}
	}
	return out
}

func paginate[T any](all []T, filters data.Filters) ([]T, data.Metadata) {
	metadata := data.CalculateMetadata(len(all), filters.Page, filters.PageSize)
	start := filters.Offset()
	if start >= len(all) {
		return []T{}, metadata
	}
	end := start + filters.Limit()
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], metadata
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Stock returns the stored available and total stock of a book.
func (r *Repo) Stock(bookID int64) (available, total int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[bookID]; ok {
		return b.AvailableStock, b.TotalStock
	}
	return 0, 0
}
