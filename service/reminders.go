package service

import (
	"context"
	"strconv"
	"time"
)

type reminders interface {
	SendOverdueReminders(ctx context.Context) (int, error)
	StartReminders(ctx context.Context)
}

// SendOverdueReminders e-mails every member holding an overdue loan and
// returns how many reminders were sent. A failed e-mail is logged and skipped.
func (s *service) SendOverdueReminders(ctx context.Context) (int, error) {
	if s.notifier == nil {
		return 0, nil
	}
	overdue, err := s.GetOverdueBooks(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	sent := 0
	for _, loan := range overdue {
		data := map[string]string{
			"memberName": loan.Member.Name,
			"bookTitle":  loan.Book.Title,
			"dueDate":    loan.DueDate.Format("Monday, 02 January 2006"),
			"daysLate":   strconv.Itoa(int(now.Sub(*loan.DueDate) / (24 * time.Hour))),
		}
		err := s.notifier.Send(loan.Member.Email, "loan_overdue.tmpl", data)
		if err != nil {
			s.logger.PrintError(err, map[string]string{"borrow_request_id": idString(loan.ID)})
			continue
		}
		sent++
	}
	return sent, nil
}

// StartReminders runs SendOverdueReminders on the configured interval until
// ctx is cancelled. It does nothing unless reminders are enabled and a
// notifier is configured.
func (s *service) StartReminders(ctx context.Context) {
	if !s.config.Reminders.Enabled || s.notifier == nil {
		return
	}
	interval := s.config.Reminders.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.background(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sent, err := s.SendOverdueReminders(ctx)
				if err != nil {
					s.logger.PrintError(err, nil)
					continue
				}
				s.logger.PrintInfo("overdue reminders sent", map[string]string{"count": strconv.Itoa(sent)})
			}
		}
	})
}
