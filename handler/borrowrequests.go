package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/data/dto"
	"github.com/emzola/circulation/internal/validator"
	"github.com/emzola/circulation/service"
)

// CreateBorrowRequest godoc
// @Summary Request to borrow a book
// @Description This endpoint places a pending borrow request for the authenticated member
// @Tags borrow-requests
// @Accept  json
// @Produce json
// @Param token header string true "Bearer token"
// @Param body body dto.CreateBorrowRequestRequestBody true "JSON payload required to create a borrow request"
// @Success 201 {object} data.BorrowRequest
// @Failure 400
// @Failure 404
// @Failure 409
// @Failure 422
// @Failure 500
// @Router /v1/borrow-requests [post]
func (h *Handler) createBorrowRequestHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody dto.CreateBorrowRequestRequestBody
	err := h.decodeJSON(w, r, &requestBody)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	user := h.contextGetUser(r)
	req, err := h.service.CreateBorrowRequest(r.Context(), user.ID, requestBody.BookID, requestBody.Notes)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/v1/borrow-requests/%d", req.ID))
	err = h.encodeJSON(w, http.StatusCreated, envelope{"borrow_request": req}, headers)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ShowBorrowRequest godoc
// @Summary Show details of a borrow request
// @Description This endpoint shows a borrow request with its member, book and approver. Members only see their own requests
// @Tags borrow-requests
// @Produce json
// @Param token header string true "Bearer token"
// @Param requestId path int true "ID of borrow request to show"
// @Success 200 {object} data.BorrowRequestWithDetails
// @Failure 404
// @Failure 500
// @Router /v1/borrow-requests/{requestId} [get]
func (h *Handler) showBorrowRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := h.readIDParam(r, "requestId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	req, err := h.service.GetBorrowRequest(r.Context(), requestID)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	user := h.contextGetUser(r)
	if !user.IsAdmin() && req.MemberID != user.ID {
		h.serviceErrorResponse(w, r, service.ErrRequestNotFound)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"borrow_request": req}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ListBorrowRequests godoc
// @Summary List borrow requests
// @Description This endpoint lists borrow requests. Admins may filter by member; members only see their own
// @Tags borrow-requests
// @Produce json
// @Param token header string true "Bearer token"
// @Param member_id query int false "Query string param for member"
// @Param status query string false "Query string param for status"
// @Param page query int false "Query string param for pagination (min 1)"
// @Param page_size query int false "Query string param for pagination (max 100)"
// @Param sort query string false "Sort by ascending or descending order. Asc: id, request_date, due_date, status. Desc: -id, -request_date, -due_date, -status"
// @Success 200 {array} data.BorrowRequestWithDetails
// @Failure 422
// @Failure 500
// @Router /v1/borrow-requests [get]
func (h *Handler) listBorrowRequestsHandler(w http.ResponseWriter, r *http.Request) {
	var qsInput dto.QsListBorrowRequests
	v := validator.New()
	qs := r.URL.Query()
	qsInput.MemberID = h.readInt64(qs, "member_id", v)
	qsInput.Status = h.readString(qs, "status", "")
	qsInput.Filters.Page = h.readInt(qs, "page", 1, v)
	qsInput.Filters.PageSize = h.readInt(qs, "page_size", 20, v)
	qsInput.Filters.Sort = h.readString(qs, "sort", "-request_date")
	qsInput.Filters.SortSafeList = []string{"id", "request_date", "due_date", "status", "-id", "-request_date", "-due_date", "-status"}
	if !v.Valid() {
		h.failedValidationResponse(w, r, &service.ValidationError{Errors: v.Errors})
		return
	}
	var filter data.BorrowRequestFilter
	user := h.contextGetUser(r)
	switch {
	case !user.IsAdmin():
		filter.MemberID = &user.ID
	case qsInput.MemberID != 0:
		filter.MemberID = &qsInput.MemberID
	}
	if qsInput.Status != "" {
		status := data.BorrowStatus(qsInput.Status)
		filter.Status = &status
	}
	requests, metadata, err := h.service.ListBorrowRequests(r.Context(), filter, qsInput.Filters)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"borrow_requests": requests, "metadata": metadata}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// UpdateBorrowRequestStatus godoc
// @Summary Approve, reject or complete a borrow request
// @Description This endpoint moves a borrow request along pending -> approved|rejected and approved -> completed
// @Tags borrow-requests
// @Accept  json
// @Produce json
// @Param token header string true "Bearer token"
// @Param requestId path int true "ID of borrow request to update"
// @Param body body dto.UpdateBorrowRequestStatusRequestBody true "JSON payload required to update a borrow request status"
// @Success 200 {object} data.BorrowRequest
// @Failure 400
// @Failure 404
// @Failure 409
// @Failure 422
// @Failure 500
// @Router /v1/borrow-requests/{requestId}/status [patch]
func (h *Handler) updateBorrowRequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := h.readIDParam(r, "requestId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	var requestBody dto.UpdateBorrowRequestStatusRequestBody
	err = h.decodeJSON(w, r, &requestBody)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	user := h.contextGetUser(r)
	req, err := h.service.UpdateBorrowRequestStatus(r.Context(), requestID, requestBody.Status, requestBody.Notes, &user.ID)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"borrow_request": req}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ReturnBook godoc
// @Summary Return a borrowed book
// @Description This endpoint completes an approved loan and puts the copy back in stock
// @Tags borrow-requests
// @Accept  json
// @Produce json
// @Param token header string true "Bearer token"
// @Param requestId path int true "ID of borrow request to return"
// @Param body body dto.ReturnBookRequestBody false "Optional return notes"
// @Success 200 {object} data.BorrowRequest
// @Failure 400
// @Failure 404
// @Failure 409
// @Failure 500
// @Router /v1/borrow-requests/{requestId}/return [post]
func (h *Handler) returnBookHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := h.readIDParam(r, "requestId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	// The body is optional: a missing one, chunked or not, means no notes.
	var requestBody dto.ReturnBookRequestBody
	err = h.decodeJSON(w, r, &requestBody)
	if err != nil && !errors.Is(err, errEmptyBody) {
		h.badRequestResponse(w, r, err)
		return
	}
	req, err := h.service.ReturnBook(r.Context(), requestID, requestBody.Notes)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"borrow_request": req}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// CancelBorrowRequest godoc
// @Summary Cancel a pending borrow request
// @Description This endpoint lets a member withdraw one of their own pending requests
// @Tags borrow-requests
// @Produce json
// @Param token header string true "Bearer token"
// @Param requestId path int true "ID of borrow request to cancel"
// @Success 200
// @Failure 404
// @Failure 409
// @Failure 500
// @Router /v1/borrow-requests/{requestId} [delete]
func (h *Handler) cancelBorrowRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := h.readIDParam(r, "requestId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	user := h.contextGetUser(r)
	_, err = h.service.CancelBorrowRequest(r.Context(), requestID, user.ID)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"message": "borrow request successfully cancelled"}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ListOverdueLoans godoc
// @Summary List overdue loans
// @Description This endpoint lists approved loans past their due date, oldest due first
// @Tags loans
// @Produce json
// @Param token header string true "Bearer token"
// @Success 200 {array} data.BorrowRequestWithDetails
// @Failure 500
// @Router /v1/loans/overdue [get]
func (h *Handler) listOverdueLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.GetOverdueBooks(r.Context())
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"loans": loans}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ListActiveLoans godoc
// @Summary List a member's active loans
// @Description This endpoint lists approved, unreturned loans of a member. Members may only list their own
// @Tags loans
// @Produce json
// @Param token header string true "Bearer token"
// @Param memberId path int true "ID of member"
// @Success 200 {array} data.BorrowRequestWithDetails
// @Failure 403
// @Failure 404
// @Failure 500
// @Router /v1/members/{memberId}/active-loans [get]
func (h *Handler) listActiveLoansHandler(w http.ResponseWriter, r *http.Request) {
	memberID, err := h.readIDParam(r, "memberId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	user := h.contextGetUser(r)
	if !user.IsAdmin() && user.ID != memberID {
		h.notPermittedResponse(w, r)
		return
	}
	loans, err := h.service.GetActiveLoansByMember(r.Context(), memberID)
	if err != nil {
		h.serverErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"loans": loans}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
