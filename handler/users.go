package handler

import (
	"fmt"
	"net/http"

	"github.com/emzola/circulation/data/dto"
	"github.com/emzola/circulation/internal/validator"
	"github.com/emzola/circulation/service"
)

// CreateUser godoc
// @Summary Create a user
// @Description This endpoint creates an admin or member account. Role defaults to member
// @Tags users
// @Accept  json
// @Produce json
// @Param token header string true "Bearer token"
// @Param body body dto.CreateUserRequestBody true "JSON payload required to create a user"
// @Success 201 {object} data.User
// @Failure 400
// @Failure 403
// @Failure 422
// @Failure 500
// @Router /v1/users [post]
func (h *Handler) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var requestBody dto.CreateUserRequestBody
	err := h.decodeJSON(w, r, &requestBody)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), requestBody)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
	err = h.encodeJSON(w, http.StatusCreated, envelope{"user": user}, headers)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ShowProfile godoc
// @Summary Show the authenticated user
// @Description This endpoint shows the account of the token holder
// @Tags users
// @Produce json
// @Param token header string true "Bearer token"
// @Success 200 {object} data.User
// @Failure 401
// @Failure 500
// @Router /v1/profile [get]
func (h *Handler) showProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := h.contextGetUser(r)
	err := h.encodeJSON(w, http.StatusOK, envelope{"user": user}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ShowUser godoc
// @Summary Show a user
// @Description This endpoint shows the details of a specific user
// @Tags users
// @Produce json
// @Param token header string true "Bearer token"
// @Param userId path int true "ID of user to show"
// @Success 200 {object} data.User
// @Failure 404
// @Failure 500
// @Router /v1/users/{userId} [get]
func (h *Handler) showUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := h.readIDParam(r, "userId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	user, err := h.service.ShowUser(r.Context(), userID)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"user": user}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// ListUsers godoc
// @Summary List users
// @Description This endpoint lists users, optionally filtered by role and searched by username, name or email
// @Tags users
// @Produce json
// @Param token header string true "Bearer token"
// @Param search query string false "Query string param for search"
// @Param role query string false "Query string param for role"
// @Param page query int false "Query string param for pagination (min 1)"
// @Param page_size query int false "Query string param for pagination (max 100)"
// @Param sort query string false "Sort by ascending or descending order. Asc: id, username, name, created_at. Desc: -id, -username, -name, -created_at"
// @Success 200 {array} data.User
// @Failure 422
// @Failure 500
// @Router /v1/users [get]
func (h *Handler) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	var qsInput dto.QsListUsers
	v := validator.New()
	qs := r.URL.Query()
	qsInput.Search = h.readString(qs, "search", "")
	qsInput.Role = h.readString(qs, "role", "")
	qsInput.Filters.Page = h.readInt(qs, "page", 1, v)
	qsInput.Filters.PageSize = h.readInt(qs, "page_size", 20, v)
	qsInput.Filters.Sort = h.readString(qs, "sort", "id")
	qsInput.Filters.SortSafeList = []string{"id", "username", "name", "created_at", "-id", "-username", "-name", "-created_at"}
	if !v.Valid() {
		h.failedValidationResponse(w, r, &service.ValidationError{Errors: v.Errors})
		return
	}
	users, metadata, err := h.service.ListUsers(r.Context(), qsInput.Search, qsInput.Role, qsInput.Filters)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"users": users, "metadata": metadata}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// UpdateUser godoc
// @Summary Update a user
// @Description This endpoint partially updates a user
// @Tags users
// @Accept  json
// @Produce json
// @Param token header string true "Bearer token"
// @Param userId path int true "ID of user to update"
// @Param body body dto.UpdateUserRequestBody true "JSON payload required to update a user"
// @Success 200 {object} data.User
// @Failure 400
// @Failure 404
// @Failure 409
// @Failure 422
// @Failure 500
// @Router /v1/users/{userId} [patch]
func (h *Handler) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := h.readIDParam(r, "userId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	var requestBody dto.UpdateUserRequestBody
	err = h.decodeJSON(w, r, &requestBody)
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), userID, requestBody)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"user": user}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// DeleteUser godoc
// @Summary Delete a user
// @Description This endpoint deletes a user with no loan history
// @Tags users
// @Produce json
// @Param token header string true "Bearer token"
// @Param userId path int true "ID of user to delete"
// @Success 200
// @Failure 404
// @Failure 409
// @Failure 500
// @Router /v1/users/{userId} [delete]
func (h *Handler) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := h.readIDParam(r, "userId")
	if err != nil {
		h.notFoundResponse(w, r)
		return
	}
	err = h.service.DeleteUser(r.Context(), userID)
	if err != nil {
		h.serviceErrorResponse(w, r, err)
		return
	}
	err = h.encodeJSON(w, http.StatusOK, envelope{"message": "user successfully deleted"}, nil)
	if err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
