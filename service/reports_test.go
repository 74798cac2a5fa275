package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dune := f.book(t, "Dune", 2)
	emma := f.book(t, "Emma", 1)

	late := f.approve(t, f.request(t, f.member.ID, dune.ID).ID)
	f.request(t, f.member.ID, emma.ID)
	f.clock.Advance(20 * 24 * time.Hour)

	stats, err := f.svc.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalBooks)
	assert.Equal(t, int64(3), stats.TotalCopies)
	assert.Equal(t, int64(2), stats.AvailableCopies)
	assert.Equal(t, int64(1), stats.TotalMembers)
	assert.Equal(t, int64(1), stats.PendingRequests)
	assert.Equal(t, int64(1), stats.ActiveLoans)
	assert.Equal(t, int64(1), stats.OverdueLoans)
	require.Len(t, stats.LoansByMonth, 1)
	assert.Equal(t, "2024-03", stats.LoansByMonth[0].Month)
	assert.Equal(t, int64(2), stats.LoansByMonth[0].Count)
	require.Len(t, stats.TopBooks, 1)
	assert.Equal(t, "Dune", stats.TopBooks[0].Title)

	cached, err := f.svc.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Same(t, stats, cached)

	_, err = f.svc.ReturnBook(ctx, late.ID, nil)
	require.NoError(t, err)
	fresh, err := f.svc.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.NotSame(t, stats, fresh, "writes invalidate the cache")
	assert.Equal(t, int64(1), fresh.CompletedLoans)
	assert.Equal(t, int64(0), fresh.ActiveLoans)
}

func TestSendOverdueReminders(t *testing.T) {
	spy := &notifierSpy{}
	f := newFixture(t, WithNotifier(spy))
	ctx := context.Background()
	book := f.book(t, "Dune", 1)
	f.approve(t, f.request(t, f.member.ID, book.ID).ID)
	f.wg.Wait()

	sent, err := f.svc.SendOverdueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	f.clock.Advance(17 * 24 * time.Hour)
	sent, err = f.svc.SendOverdueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	mails := spy.Sent()
	require.Len(t, mails, 2)
	assert.Equal(t, "loan_overdue.tmpl", mails[1].template)
	assert.Equal(t, "3", mails[1].data["daysLate"])

	spy.err = errors.New("smtp down")
	sent, err = f.svc.SendOverdueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestSendOverdueRemindersWithoutNotifier(t *testing.T) {
	f := newFixture(t)
	sent, err := f.svc.SendOverdueReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestStartRemindersStopsWithContext(t *testing.T) {
	f := newFixture(t, WithNotifier(&notifierSpy{}))
	f.svc.config.Reminders.Enabled = true
	f.svc.config.Reminders.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	f.svc.StartReminders(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reminder loop did not stop")
	}
}
