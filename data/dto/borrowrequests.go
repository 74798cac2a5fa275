package dto

import "github.com/emzola/circulation/data"

// CreateBorrowRequestRequestBody defines a request body for CreateBorrowRequest service.
type CreateBorrowRequestRequestBody struct {
	BookID int64   `json:"book_id"`
	Notes  *string `json:"notes"`
}

// UpdateBorrowRequestStatusRequestBody defines a request body for UpdateBorrowRequestStatus service.
type UpdateBorrowRequestStatusRequestBody struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

// ReturnBookRequestBody defines a request body for ReturnBook service.
type ReturnBookRequestBody struct {
	Notes *string `json:"notes"`
}

// QsListBorrowRequests defines query strings for ListBorrowRequests service.
type QsListBorrowRequests struct {
	MemberID int64
	Status   string
	Filters  data.Filters
}
