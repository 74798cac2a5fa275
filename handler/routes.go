package handler

import (
	"expvar"
	"net/http"

	"github.com/julienschmidt/httprouter"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

func (h *Handler) Routes() http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(h.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(h.methodNotAllowed)

	router.HandlerFunc(http.MethodGet, "/v1/books", h.requireAuthenticatedUser(h.listBooksHandler))
	router.HandlerFunc(http.MethodPost, "/v1/books", h.requireAdmin(h.createBookHandler))
	router.HandlerFunc(http.MethodGet, "/v1/books/:bookId", h.requireAuthenticatedUser(h.showBookHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/books/:bookId", h.requireAdmin(h.updateBookHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/books/:bookId", h.requireAdmin(h.deleteBookHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/books/:bookId/cover", h.requireAdmin(h.updateBookCoverHandler))

	router.HandlerFunc(http.MethodGet, "/v1/borrow-requests", h.requireAuthenticatedUser(h.listBorrowRequestsHandler))
	router.HandlerFunc(http.MethodPost, "/v1/borrow-requests", h.requireMember(h.createBorrowRequestHandler))
	router.HandlerFunc(http.MethodGet, "/v1/borrow-requests/:requestId", h.requireAuthenticatedUser(h.showBorrowRequestHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/borrow-requests/:requestId", h.requireMember(h.cancelBorrowRequestHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/borrow-requests/:requestId/status", h.requireAdmin(h.updateBorrowRequestStatusHandler))
	router.HandlerFunc(http.MethodPost, "/v1/borrow-requests/:requestId/return", h.requireAdmin(h.returnBookHandler))

	router.HandlerFunc(http.MethodGet, "/v1/loans/overdue", h.requireAdmin(h.listOverdueLoansHandler))
	router.HandlerFunc(http.MethodGet, "/v1/members/:memberId/active-loans", h.requireAuthenticatedUser(h.listActiveLoansHandler))
	router.HandlerFunc(http.MethodPost, "/v1/reminders/overdue", h.requireAdmin(h.sendOverdueRemindersHandler))
	router.HandlerFunc(http.MethodGet, "/v1/dashboard", h.requireAdmin(h.showDashboardHandler))

	router.HandlerFunc(http.MethodGet, "/v1/profile", h.requireAuthenticatedUser(h.showProfileHandler))
	router.HandlerFunc(http.MethodGet, "/v1/users", h.requireAdmin(h.listUsersHandler))
	router.HandlerFunc(http.MethodPost, "/v1/users", h.requireAdmin(h.createUserHandler))
	router.HandlerFunc(http.MethodGet, "/v1/users/:userId", h.requireAdmin(h.showUserHandler))
	router.HandlerFunc(http.MethodPatch, "/v1/users/:userId", h.requireAdmin(h.updateUserHandler))
	router.HandlerFunc(http.MethodDelete, "/v1/users/:userId", h.requireAdmin(h.deleteUserHandler))

	router.HandlerFunc(http.MethodPost, "/v1/tokens/authentication", h.createAuthenticationTokenHandler)
	router.HandlerFunc(http.MethodDelete, "/v1/tokens/authentication", h.requireAuthenticatedUser(h.deleteAuthenticationTokenHandler))

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", h.healthcheckHandler)
	router.HandlerFunc(http.MethodGet, "/debug/vars", h.basicAuth(expvar.Handler().ServeHTTP))

	// Swagger routes
	router.HandlerFunc(http.MethodGet, "/spec", h.handleSwaggerFile())
	router.HandlerFunc(http.MethodGet, "/docs/*any", httpSwagger.Handler(httpSwagger.URL("/spec")))

	return h.middleware(router)
}

// middleware wraps next in the chain shared by every route. requestID sits
// outside recoverPanic so a recovered panic is logged and answered with an id.
func (h *Handler) middleware(next http.Handler) http.Handler {
	return h.metrics(h.requestID(h.recoverPanic(h.enableCORS(h.rateLimit(h.authenticate(next))))))
}
