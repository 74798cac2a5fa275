package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/emzola/circulation/config"
	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/internal/jsonlog"
	"github.com/emzola/circulation/internal/testutil/memrepo"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	recipient, template string
	data                map[string]string
}

type notifierSpy struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *notifierSpy) Send(recipient, templateFile string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{recipient, templateFile, data.(map[string]string)})
	return nil
}

func (n *notifierSpy) Sent() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

type fixture struct {
	svc    *service
	repo   *memrepo.Repo
	clock  *fixedClock
	wg     *sync.WaitGroup
	admin  *data.User
	member *data.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	var cfg config.Config
	cfg.Loans.Period = data.DefaultLoanPeriod
	cfg.Cache.DashboardTTL = time.Minute
	f := &fixture{
		repo:  memrepo.New(),
		clock: &fixedClock{now: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)},
		wg:    &sync.WaitGroup{},
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.svc = New(cfg, f.wg, jsonlog.New(io.Discard, jsonlog.LevelOff), f.repo, opts...)
	f.admin = f.user(t, "admin", data.RoleAdmin)
	f.member = f.user(t, "member", data.RoleMember)
	return f
}

func (f *fixture) user(t *testing.T, username, role string) *data.User {
	t.Helper()
	user := &data.User{Username: username, Name: username, Email: username + "@example.com", Role: role}
	require.NoError(t, user.Password.Set("pa55word1234"))
	require.NoError(t, f.repo.CreateUser(context.Background(), user))
	return user
}

func (f *fixture) book(t *testing.T, title string, stock int32) *data.Book {
	t.Helper()
	book := &data.Book{Title: title, Author: "Author", TotalStock: stock, AvailableStock: stock, Status: data.BookStatusAvailable}
	require.NoError(t, f.repo.CreateBook(context.Background(), book))
	return book
}

func (f *fixture) request(t *testing.T, memberID, bookID int64) *data.BorrowRequest {
	t.Helper()
	req, err := f.svc.CreateBorrowRequest(context.Background(), memberID, bookID, nil)
	require.NoError(t, err)
	return req
}

func (f *fixture) approve(t *testing.T, requestID int64) *data.BorrowRequest {
	t.Helper()
	req, err := f.svc.UpdateBorrowRequestStatus(context.Background(), requestID, "approved", nil, &f.admin.ID)
	require.NoError(t, err)
	return req
}

func ptr[T any](v T) *T {
	return &v
}
