package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/emzola/circulation/data"
)

type borrowRequests interface {
	CreateBorrowRequest(ctx context.Context, req *data.BorrowRequest) error
	GetBorrowRequest(ctx context.Context, ID int64) (*data.BorrowRequest, error)
	GetBorrowRequestForMember(ctx context.Context, ID, memberID int64) (*data.BorrowRequest, error)
	GetBorrowRequestWithDetails(ctx context.Context, ID int64) (*data.BorrowRequestWithDetails, error)
	GetAllBorrowRequests(ctx context.Context, filter data.BorrowRequestFilter, filters data.Filters) ([]*data.BorrowRequestWithDetails, data.Metadata, error)
	GetOverdueBorrowRequests(ctx context.Context, now time.Time) ([]*data.BorrowRequestWithDetails, error)
	GetActiveLoansForMember(ctx context.Context, memberID int64) ([]*data.BorrowRequestWithDetails, error)
	UpdateBorrowRequest(ctx context.Context, req *data.BorrowRequest, from data.BorrowStatus, stockDelta int) error
}

// detailColumns is the column order scanned by scanBorrowRequestWithDetails.
var detailColumns = []interface{}{
	"br.id", "br.member_id", "br.book_id", "br.request_date", "br.approved_date", "br.due_date", "br.return_date",
	"br.status", "br.notes", "br.approved_by", "br.created_at", "br.updated_at", "br.version",
	"m.id", "m.username", "m.name", "m.email",
	"b.id", "b.title", "b.author", "b.isbn",
	"a.id", "a.username", "a.name", "a.email",
}

// detailsQuery selects borrow requests joined with their member, book and
// optional approver. lead columns are selected ahead of detailColumns.
func detailsQuery(lead ...interface{}) *goqu.SelectDataset {
	return dialect.From(goqu.T("borrow_requests").As("br")).
		InnerJoin(goqu.T("users").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("br.member_id")))).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("br.book_id")))).
		LeftJoin(goqu.T("users").As("a"), goqu.On(goqu.I("a.id").Eq(goqu.I("br.approved_by")))).
		Select(append(lead, detailColumns...)...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBorrowRequestWithDetails(row rowScanner, lead ...any) (*data.BorrowRequestWithDetails, error) {
	var (
		req      data.BorrowRequestWithDetails
		member   data.UserSummary
		book     data.BookSummary
		approver struct {
			ID                    *int64
			Username, Name, Email *string
		}
	)
	dest := append(lead,
		&req.ID,
		&req.MemberID,
		&req.BookID,
		&req.RequestDate,
		&req.ApprovedDate,
		&req.DueDate,
		&req.ReturnDate,
		&req.Status,
		&req.Notes,
		&req.ApprovedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.Version,
		&member.ID,
		&member.Username,
		&member.Name,
		&member.Email,
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Isbn,
		&approver.ID,
		&approver.Username,
		&approver.Name,
		&approver.Email,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	req.Member = &member
	req.Book = &book
	if approver.ID != nil {
		req.Approver = &data.UserSummary{
			ID:       *approver.ID,
			Username: *approver.Username,
			Name:     *approver.Name,
			Email:    *approver.Email,
		}
	}
	return &req, nil
}

// CreateBorrowRequest inserts a new borrow request. The partial unique index on
// active (member_id, book_id) pairs turns a concurrent duplicate into ErrDuplicateRecord.
func (r *repository) CreateBorrowRequest(ctx context.Context, req *data.BorrowRequest) error {
	query := `
		INSERT INTO borrow_requests (member_id, book_id, request_date, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at, version`
	args := []interface{}{req.MemberID, req.BookID, req.RequestDate, req.Status, req.Notes}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&req.ID,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.Version,
	)
	if err != nil {
		switch {
		case pqCode(err) == pqUniqueViolation:
			return ErrDuplicateRecord
		case pqCode(err) == pqForeignKeyViolation:
			return ErrRecordNotFound
		default:
			return err
		}
	}
	return nil
}

// GetBorrowRequest retrieves a borrow request record.
func (r *repository) GetBorrowRequest(ctx context.Context, ID int64) (*data.BorrowRequest, error) {
	if ID < 1 {
		return nil, ErrRecordNotFound
	}
	query := `
		SELECT id, member_id, book_id, request_date, approved_date, due_date, return_date, status, notes, approved_by, created_at, updated_at, version
		FROM borrow_requests
		WHERE id = $1`
	return r.getBorrowRequest(ctx, query, ID)
}

// GetBorrowRequestForMember retrieves a borrow request only if it belongs to memberID.
func (r *repository) GetBorrowRequestForMember(ctx context.Context, ID, memberID int64) (*data.BorrowRequest, error) {
	if ID < 1 || memberID < 1 {
		return nil, ErrRecordNotFound
	}
	query := `
		SELECT id, member_id, book_id, request_date, approved_date, due_date, return_date, status, notes, approved_by, created_at, updated_at, version
		FROM borrow_requests
		WHERE id = $1 AND member_id = $2`
	return r.getBorrowRequest(ctx, query, ID, memberID)
}

func (r *repository) getBorrowRequest(ctx context.Context, query string, args ...any) (*data.BorrowRequest, error) {
	var req data.BorrowRequest
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&req.ID,
		&req.MemberID,
		&req.BookID,
		&req.RequestDate,
		&req.ApprovedDate,
		&req.DueDate,
		&req.ReturnDate,
		&req.Status,
		&req.Notes,
		&req.ApprovedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &req, nil
}

// GetBorrowRequestWithDetails retrieves a borrow request with its member, book and approver.
func (r *repository) GetBorrowRequestWithDetails(ctx context.Context, ID int64) (*data.BorrowRequestWithDetails, error) {
	if ID < 1 {
		return nil, ErrRecordNotFound
	}
	query, args, err := detailsQuery().
		Where(goqu.I("br.id").Eq(ID)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	req, err := scanBorrowRequestWithDetails(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return req, nil
}

// GetAllBorrowRequests retrieves a paginated list of borrow requests with details.
// Filter fields left nil are not applied.
func (r *repository) GetAllBorrowRequests(ctx context.Context, filter data.BorrowRequestFilter, filters data.Filters) ([]*data.BorrowRequestWithDetails, data.Metadata, error) {
	var where []goqu.Expression
	if filter.MemberID != nil {
		where = append(where, goqu.I("br.member_id").Eq(*filter.MemberID))
	}
	if filter.Status != nil {
		where = append(where, goqu.I("br.status").Eq(string(*filter.Status)))
	}
	totalRecords, err := r.countBorrowRequests(ctx, where)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	sortColumn := goqu.I("br." + filters.SortColumn())
	order := sortColumn.Asc()
	if filters.SortDirection() == "DESC" {
		order = sortColumn.Desc()
	}
	query, args, err := detailsQuery().
		Where(where...).
		Order(order, goqu.I("br.id").Asc()).
		Limit(uint(filters.Limit())).
		Offset(uint(filters.Offset())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, data.Metadata{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	defer rows.Close()
	requests := []*data.BorrowRequestWithDetails{}
	for rows.Next() {
		req, err := scanBorrowRequestWithDetails(rows)
		if err != nil {
			return nil, data.Metadata{}, err
		}
		requests = append(requests, req)
	}
	if err = rows.Err(); err != nil {
		return nil, data.Metadata{}, err
	}
	metadata := data.CalculateMetadata(totalRecords, filters.Page, filters.PageSize)
	return requests, metadata, nil
}

func (r *repository) countBorrowRequests(ctx context.Context, where []goqu.Expression) (int, error) {
	query, args, err := dialect.From(goqu.T("borrow_requests").As("br")).
		Select(goqu.COUNT("*")).
		Where(where...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, err
	}
	return r.count(ctx, query, args...)
}

// GetOverdueBorrowRequests retrieves approved, unreturned loans whose due date is before now.
func (r *repository) GetOverdueBorrowRequests(ctx context.Context, now time.Time) ([]*data.BorrowRequestWithDetails, error) {
	ds := detailsQuery().Where(
		goqu.I("br.status").Eq(string(data.StatusApproved)),
		goqu.I("br.return_date").IsNull(),
		goqu.I("br.due_date").Lt(now),
	)
	return r.listBorrowRequests(ctx, ds)
}

// GetActiveLoansForMember retrieves a member's approved, unreturned loans.
func (r *repository) GetActiveLoansForMember(ctx context.Context, memberID int64) ([]*data.BorrowRequestWithDetails, error) {
	ds := detailsQuery().Where(
		goqu.I("br.member_id").Eq(memberID),
		goqu.I("br.status").Eq(string(data.StatusApproved)),
		goqu.I("br.return_date").IsNull(),
	)
	return r.listBorrowRequests(ctx, ds)
}

func (r *repository) listBorrowRequests(ctx context.Context, ds *goqu.SelectDataset) ([]*data.BorrowRequestWithDetails, error) {
	query, args, err := ds.
		Order(goqu.I("br.due_date").Asc(), goqu.I("br.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	requests := []*data.BorrowRequestWithDetails{}
	for rows.Next() {
		req, err := scanBorrowRequestWithDetails(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

// UpdateBorrowRequest writes req and applies stockDelta (-1, 0 or +1) to its
// book's available stock in one transaction. The write only succeeds while
// the stored status still equals from, so two callers racing on the same
// transition cannot both move stock: the loser gets ErrEditConflict. A stock
// guard failure rolls the status change back.
func (r *repository) UpdateBorrowRequest(ctx context.Context, req *data.BorrowRequest, from data.BorrowStatus, stockDelta int) error {
	query := `
		UPDATE borrow_requests
		SET status = $1, approved_date = $2, due_date = $3, return_date = $4, notes = $5, approved_by = $6,
			updated_at = NOW(), version = version + 1
		WHERE id = $7 AND status = $8 AND version = $9
		RETURNING updated_at, version`
	args := []interface{}{
		req.Status,
		req.ApprovedDate,
		req.DueDate,
		req.ReturnDate,
		req.Notes,
		req.ApprovedBy,
		req.ID,
		from,
		req.Version,
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var (
		updatedAt time.Time
		version   int32
	)
	err := r.runInTx(ctx, func(ctx context.Context, tx DBTX) error {
		err := tx.QueryRowContext(ctx, query, args...).Scan(&updatedAt, &version)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return ErrEditConflict
			default:
				return err
			}
		}
		switch {
		case stockDelta < 0:
			return decrementStock(ctx, tx, req.BookID)
		case stockDelta > 0:
			return incrementStock(ctx, tx, req.BookID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	req.UpdatedAt = updatedAt
	req.Version = version
	return nil
}
