package data

import (
	"errors"
	"fmt"
	"time"

	"github.com/emzola/circulation/internal/validator"
)

// DefaultLoanPeriod is how long an approved loan runs before it is overdue.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// CancelledByMemberNote replaces the notes of a request cancelled by its member.
const CancelledByMemberNote = "Cancelled by member"

var ErrInvalidTransition = errors.New("invalid status transition")

// BorrowStatus is the lifecycle state of a borrow request.
type BorrowStatus string

const (
	StatusPending   BorrowStatus = "pending"
	StatusApproved  BorrowStatus = "approved"
	StatusRejected  BorrowStatus = "rejected"
	StatusCompleted BorrowStatus = "completed"
)

// borrowTransitions lists every legal source -> target pair.
// Rejected and completed have no outgoing edges.
var borrowTransitions = map[BorrowStatus][]BorrowStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// ParseBorrowStatus converts s into a BorrowStatus.
func ParseBorrowStatus(s string) (BorrowStatus, error) {
	status := BorrowStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown borrow status %q", s)
	}
	return status, nil
}

func (s BorrowStatus) Valid() bool {
	return validator.PermittedValue(s, StatusPending, StatusApproved, StatusRejected, StatusCompleted)
}

// Active reports whether the status still holds a claim on the (member, book) pair.
func (s BorrowStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

func (s BorrowStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s BorrowStatus) CanTransitionTo(next BorrowStatus) bool {
	for _, allowed := range borrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BorrowRequest defines a member's request to borrow a book and, once approved, the loan itself.
type BorrowRequest struct {
	ID           int64        `json:"id"`
	MemberID     int64        `json:"member_id"`
	BookID       int64        `json:"book_id"`
	RequestDate  time.Time    `json:"request_date"`
	ApprovedDate *time.Time   `json:"approved_date,omitempty"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
	ReturnDate   *time.Time   `json:"return_date,omitempty"`
	Status       BorrowStatus `json:"status"`
	Notes        *string      `json:"notes,omitempty"`
	ApprovedBy   *int64       `json:"approved_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Version      int32        `json:"-"`
}

// BorrowRequestWithDetails is a borrow request joined with its member, book and approver.
type BorrowRequestWithDetails struct {
	BorrowRequest
	Member   *UserSummary `json:"member"`
	Book     *BookSummary `json:"book"`
	Approver *UserSummary `json:"approver,omitempty"`
}

// BorrowRequestFilter narrows a borrow request listing. Nil fields are ignored.
type BorrowRequestFilter struct {
	MemberID *int64
	Status   *BorrowStatus
}

// Overdue reports whether the loan is still out past its due date at now.
func (r *BorrowRequest) Overdue(now time.Time) bool {
	return r.Status == StatusApproved && r.ReturnDate == nil && r.DueDate != nil && r.DueDate.Before(now)
}

func (r *BorrowRequest) transition(next BorrowStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// Approve moves a pending request to approved and starts the loan period.
func (r *BorrowRequest) Approve(approvedBy *int64, now time.Time, loanPeriod time.Duration) error {
	if err := r.transition(StatusApproved); err != nil {
		return err
	}
	due := now.Add(loanPeriod)
	r.ApprovedDate = &now
	r.DueDate = &due
	r.ApprovedBy = approvedBy
	return nil
}

// Reject moves a pending request to rejected.
func (r *BorrowRequest) Reject() error {
	return r.transition(StatusRejected)
}

// Complete moves an approved loan to completed and records the return.
func (r *BorrowRequest) Complete(now time.Time) error {
	if err := r.transition(StatusCompleted); err != nil {
		return err
	}
	r.ReturnDate = &now
	return nil
}

func ValidateNotes(v *validator.Validator, notes *string) {
	if notes != nil {
		v.Check(len(*notes) <= 1000, "notes", "must not be more than 1000 bytes long")
	}
}
