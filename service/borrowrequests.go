package service

import (
	"context"
	"errors"
	"time"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/internal/validator"
	"github.com/emzola/circulation/repository"
)

type borrowRequests interface {
	CreateBorrowRequest(ctx context.Context, memberID, bookID int64, notes *string) (*data.BorrowRequest, error)
	GetBorrowRequest(ctx context.Context, requestID int64) (*data.BorrowRequestWithDetails, error)
	ListBorrowRequests(ctx context.Context, filter data.BorrowRequestFilter, filters data.Filters) ([]*data.BorrowRequestWithDetails, data.Metadata, error)
	UpdateBorrowRequestStatus(ctx context.Context, requestID int64, status string, notes *string, approvedBy *int64) (*data.BorrowRequest, error)
	ReturnBook(ctx context.Context, requestID int64, notes *string) (*data.BorrowRequest, error)
	GetOverdueBooks(ctx context.Context) ([]*data.BorrowRequestWithDetails, error)
	GetActiveLoansByMember(ctx context.Context, memberID int64) ([]*data.BorrowRequestWithDetails, error)
	CancelBorrowRequest(ctx context.Context, requestID, memberID int64) (bool, error)
}

// CreateBorrowRequest places a pending request for a book on behalf of a member.
// Stock is not reserved until the request is approved.
func (s *service) CreateBorrowRequest(ctx context.Context, memberID, bookID int64, notes *string) (*data.BorrowRequest, error) {
	v := validator.New()
	if data.ValidateNotes(v, notes); !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrBookNotFound
		default:
			return nil, err
		}
	}
	if !book.Borrowable() {
		return nil, ErrBookUnavailable
	}
	member, err := s.repo.GetUserByID(ctx, memberID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrMemberNotFound
		default:
			return nil, err
		}
	}
	if member.Role != data.RoleMember {
		return nil, ErrMemberNotFound
	}
	req := &data.BorrowRequest{
		MemberID:    member.ID,
		BookID:      book.ID,
		RequestDate: s.clock.Now(),
		Status:      data.StatusPending,
		Notes:       notes,
	}
	err = s.repo.CreateBorrowRequest(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRecord):
			return nil, ErrActiveRequestExists
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrBookNotFound
		default:
			return nil, err
		}
	}
	s.invalidateDashboard()
	return req, nil
}

// GetBorrowRequest retrieves a borrow request with its member, book and approver.
func (s *service) GetBorrowRequest(ctx context.Context, requestID int64) (*data.BorrowRequestWithDetails, error) {
	req, err := s.repo.GetBorrowRequestWithDetails(ctx, requestID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRequestNotFound
		default:
			return nil, err
		}
	}
	return req, nil
}

// ListBorrowRequests retrieves a paginated list of borrow requests. Member and
// status filters are optional and combined with AND.
func (s *service) ListBorrowRequests(ctx context.Context, filter data.BorrowRequestFilter, filters data.Filters) ([]*data.BorrowRequestWithDetails, data.Metadata, error) {
	v := validator.New()
	data.ValidateFilters(v, filters)
	if filter.Status != nil {
		v.Check(filter.Status.Valid(), "status", "must be one of pending, approved, rejected or completed")
	}
	if !v.Valid() {
		return nil, data.Metadata{}, failedValidation(v.Errors)
	}
	return s.repo.GetAllBorrowRequests(ctx, filter, filters)
}

// UpdateBorrowRequestStatus moves a request to status. Approval starts the loan
// and reserves a copy of the book; completion is handled as a return.
func (s *service) UpdateBorrowRequestStatus(ctx context.Context, requestID int64, status string, notes *string, approvedBy *int64) (*data.BorrowRequest, error) {
	v := validator.New()
	next, err := data.ParseBorrowStatus(status)
	if err != nil {
		v.AddError("status", "must be one of pending, approved, rejected or completed")
	}
	data.ValidateNotes(v, notes)
	if !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	req, err := s.getBorrowRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if next == data.StatusCompleted {
		return s.completeLoan(ctx, req, notes)
	}
	prev := req.Status
	stockDelta := 0
	switch next {
	case data.StatusApproved:
		err = req.Approve(approvedBy, s.clock.Now(), s.loanPeriod())
		stockDelta = -1
	case data.StatusRejected:
		err = req.Reject()
	default:
		err = data.ErrInvalidTransition
	}
	if err != nil {
		return nil, ErrInvalidTransition
	}
	if notes != nil {
		req.Notes = notes
	}
	if err := s.saveBorrowRequest(ctx, req, prev, stockDelta); err != nil {
		return nil, err
	}
	if next == data.StatusApproved {
		s.notifyApproval(req)
	}
	return req, nil
}

// ReturnBook completes an approved loan and puts the copy back into circulation.
func (s *service) ReturnBook(ctx context.Context, requestID int64, notes *string) (*data.BorrowRequest, error) {
	v := validator.New()
	if data.ValidateNotes(v, notes); !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	req, err := s.getBorrowRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.completeLoan(ctx, req, notes)
}

// completeLoan records the return of req. Notes, when given, replace the
// request's existing notes.
func (s *service) completeLoan(ctx context.Context, req *data.BorrowRequest, notes *string) (*data.BorrowRequest, error) {
	if req.ReturnDate != nil {
		return nil, ErrAlreadyReturned
	}
	if req.Status != data.StatusApproved {
		return nil, ErrNotApproved
	}
	prev := req.Status
	if err := req.Complete(s.clock.Now()); err != nil {
		return nil, ErrInvalidTransition
	}
	if notes != nil {
		req.Notes = notes
	}
	if err := s.saveBorrowRequest(ctx, req, prev, 1); err != nil {
		return nil, err
	}
	return req, nil
}

// GetOverdueBooks retrieves approved loans that are past their due date and not yet returned.
func (s *service) GetOverdueBooks(ctx context.Context) ([]*data.BorrowRequestWithDetails, error) {
	return s.repo.GetOverdueBorrowRequests(ctx, s.clock.Now())
}

// GetActiveLoansByMember retrieves a member's approved loans that are not yet returned.
func (s *service) GetActiveLoansByMember(ctx context.Context, memberID int64) ([]*data.BorrowRequestWithDetails, error) {
	return s.repo.GetActiveLoansForMember(ctx, memberID)
}

// CancelBorrowRequest lets a member withdraw one of their own pending requests.
// A request that does not exist and one owned by another member fail identically.
func (s *service) CancelBorrowRequest(ctx context.Context, requestID, memberID int64) (bool, error) {
	req, err := s.repo.GetBorrowRequestForMember(ctx, requestID, memberID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return false, ErrRequestNotFoundOrNotOwned
		default:
			return false, err
		}
	}
	if req.Status != data.StatusPending {
		return false, ErrNotPending
	}
	prev := req.Status
	if err := req.Reject(); err != nil {
		return false, ErrInvalidTransition
	}
	note := data.CancelledByMemberNote
	req.Notes = &note
	if err := s.saveBorrowRequest(ctx, req, prev, 0); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) getBorrowRequest(ctx context.Context, requestID int64) (*data.BorrowRequest, error) {
	req, err := s.repo.GetBorrowRequest(ctx, requestID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRequestNotFound
		default:
			return nil, err
		}
	}
	return req, nil
}

// saveBorrowRequest persists a transition from prev together with its stock effect.
func (s *service) saveBorrowRequest(ctx context.Context, req *data.BorrowRequest, prev data.BorrowStatus, stockDelta int) error {
	err := s.repo.UpdateBorrowRequest(ctx, req, prev, stockDelta)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			return ErrEditConflict
		case errors.Is(err, repository.ErrStockExhausted):
			return ErrBookUnavailable
		case errors.Is(err, repository.ErrRecordNotFound):
			return ErrBookNotFound
		default:
			return err
		}
	}
	s.invalidateDashboard()
	return nil
}

// notifyApproval e-mails the member the due date of a newly approved loan.
func (s *service) notifyApproval(req *data.BorrowRequest) {
	if s.notifier == nil {
		return
	}
	requestID, memberID, bookID, dueDate := req.ID, req.MemberID, req.BookID, *req.DueDate
	s.background(func() {
		properties := map[string]string{"borrow_request_id": idString(requestID)}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		member, err := s.repo.GetUserByID(ctx, memberID)
		if err != nil {
			s.logger.PrintError(err, properties)
			return
		}
		book, err := s.repo.GetBook(ctx, bookID)
		if err != nil {
			s.logger.PrintError(err, properties)
			return
		}
		data := map[string]string{
			"memberName": member.Name,
			"bookTitle":  book.Title,
			"dueDate":    dueDate.Format("Monday, 02 January 2006"),
		}
		err = s.notifier.Send(member.Email, "loan_approved.tmpl", data)
		if err != nil {
			s.logger.PrintError(err, properties)
		}
	})
}
