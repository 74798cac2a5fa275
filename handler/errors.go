package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/emzola/circulation/service"
)

// logError logs an error with the request method, URL and request id.
func (h *Handler) logError(r *http.Request, err error) {
	h.logger.PrintError(err, map[string]string{
		"request_method": r.Method,
		"request_url":    r.URL.String(),
		"request_id":     h.contextGetRequestID(r),
	})
}

// errorResponse sends JSON-formatted error messages to the client with a given status code.
func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := envelope{"error": message}
	err := h.encodeJSON(w, status, env, nil)
	if err != nil {
		h.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, err)
	message := "the server encountered a problem and could not process your request"
	h.errorResponse(w, r, http.StatusInternalServerError, message)
}

func (h *Handler) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	h.errorResponse(w, r, http.StatusNotFound, message)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("the %s method is not supported for this resource", r.Method)
	h.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}

func (h *Handler) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	h.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

// failedValidationResponse writes the field errors carried by err.
func (h *Handler) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationError *service.ValidationError
	if !errors.As(err, &validationError) {
		h.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.errorResponse(w, r, http.StatusUnprocessableEntity, validationError.Errors)
}

func (h *Handler) editConflictResponse(w http.ResponseWriter, r *http.Request) {
	message := "unable to update the record due to an edit conflict, please try again"
	h.errorResponse(w, r, http.StatusConflict, message)
}

func (h *Handler) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	message := "rate limit exceeded"
	h.errorResponse(w, r, http.StatusTooManyRequests, message)
}

func (h *Handler) invalidCredentialsResponse(w http.ResponseWriter, r *http.Request) {
	message := "invalid authentication credentials"
	h.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (h *Handler) invalidAuthenticationTokenResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	message := "invalid or missing authentication token"
	h.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (h *Handler) authenticationRequiredResponse(w http.ResponseWriter, r *http.Request) {
	message := "you must be authenticated to access this resource"
	h.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (h *Handler) notPermittedResponse(w http.ResponseWriter, r *http.Request) {
	message := "your user account doesn't have the necessary permissions to access this resource"
	h.errorResponse(w, r, http.StatusForbidden, message)
}

func (h *Handler) contentTooLargeResponse(w http.ResponseWriter, r *http.Request) {
	message := "the uploaded file is too large"
	h.errorResponse(w, r, http.StatusRequestEntityTooLarge, message)
}

func (h *Handler) unsupportedMediaTypeResponse(w http.ResponseWriter, r *http.Request) {
	message := "the uploaded file type is not supported"
	h.errorResponse(w, r, http.StatusUnsupportedMediaType, message)
}

func (h *Handler) storageDisabledResponse(w http.ResponseWriter, r *http.Request) {
	message := "file uploads are not available on this server"
	h.errorResponse(w, r, http.StatusServiceUnavailable, message)
}

// serviceErrorResponse maps an error returned by the service layer to a
// response. Ledger errors keep their own message so clients can tell
// "book not found" from "member not found".
func (h *Handler) serviceErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrFailedValidation):
		h.failedValidationResponse(w, r, err)
	case errors.Is(err, service.ErrEditConflict):
		h.editConflictResponse(w, r)
	case errors.Is(err, service.ErrRecordNotFound):
		if errors.Unwrap(err) == nil {
			h.notFoundResponse(w, r)
			return
		}
		h.errorResponse(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		h.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalidState):
		h.errorResponse(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		h.invalidCredentialsResponse(w, r)
	case errors.Is(err, service.ErrNotPermitted):
		h.notPermittedResponse(w, r)
	case errors.Is(err, service.ErrContentTooLarge):
		h.contentTooLargeResponse(w, r)
	case errors.Is(err, service.ErrUnsupportedMediaType):
		h.unsupportedMediaTypeResponse(w, r)
	case errors.Is(err, service.ErrBadRequest):
		h.badRequestResponse(w, r, err)
	case errors.Is(err, service.ErrStorageDisabled):
		h.storageDisabledResponse(w, r)
	default:
		h.serverErrorResponse(w, r, err)
	}
}
