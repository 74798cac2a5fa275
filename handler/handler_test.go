package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emzola/circulation/config"
	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/internal/jsonlog"
	"github.com/emzola/circulation/internal/testutil/memrepo"
	"github.com/emzola/circulation/service"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	routes      http.Handler
	repo        *memrepo.Repo
	admin       *data.User
	member      *data.User
	other       *data.User
	adminToken  string
	memberToken string
	otherToken  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	var cfg config.Config
	cfg.Server.Env = "testing"
	cfg.Loans.Period = data.DefaultLoanPeriod
	logger := jsonlog.New(io.Discard, jsonlog.LevelOff)
	repo := memrepo.New()
	var wg sync.WaitGroup
	t.Cleanup(wg.Wait)
	svc := service.New(cfg, &wg, logger, repo)

	ts := &testServer{routes: New(cfg, logger, svc).Routes(), repo: repo}
	ts.admin, ts.adminToken = ts.user(t, "admin", data.RoleAdmin)
	ts.member, ts.memberToken = ts.user(t, "member", data.RoleMember)
	ts.other, ts.otherToken = ts.user(t, "other", data.RoleMember)
	return ts
}

func (ts *testServer) user(t *testing.T, username, role string) (*data.User, string) {
	t.Helper()
	ctx := context.Background()
	user := &data.User{Username: username, Name: username, Email: username + "@example.com", Role: role}
	require.NoError(t, user.Password.Set("pa55word1234"))
	require.NoError(t, ts.repo.CreateUser(ctx, user))
	token, err := ts.repo.CreateNewToken(ctx, user.ID, time.Hour, data.ScopeAuthentication)
	require.NoError(t, err)
	return user, token.Plaintext
}

func (ts *testServer) book(t *testing.T, title string, stock int32) *data.Book {
	t.Helper()
	book := &data.Book{Title: title, Author: "Author", TotalStock: stock, AvailableStock: stock, Status: data.BookStatusAvailable}
	require.NoError(t, ts.repo.CreateBook(context.Background(), book))
	return book
}

// do sends a request through the full middleware chain. A non-nil body is
// encoded as JSON.
func (ts *testServer) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(js)
	}
	r := httptest.NewRequest(method, target, reader)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.routes.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeInto(t *testing.T, raw json.RawMessage, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dst), string(raw))
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var message string
	decodeInto(t, decode(t, w)["error"], &message)
	return message
}

func TestHealthcheck(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/healthcheck", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var status string
	decodeInto(t, decode(t, w)["status"], &status)
	assert.Equal(t, "available", status)

	_, err := ulid.ParseStrict(w.Header().Get("X-Request-Id"))
	assert.NoError(t, err)
}

func TestRequestIDIsKept(t *testing.T) {
	ts := newTestServer(t)
	id := ulid.Make().String()

	r := httptest.NewRequest(http.MethodGet, "/v1/healthcheck", nil)
	r.Header.Set("X-Request-Id", id)
	w := httptest.NewRecorder()
	ts.routes.ServeHTTP(w, r)
	assert.Equal(t, id, w.Header().Get("X-Request-Id"))

	r = httptest.NewRequest(http.MethodGet, "/v1/healthcheck", nil)
	r.Header.Set("X-Request-Id", "not-a-ulid")
	w = httptest.NewRecorder()
	ts.routes.ServeHTTP(w, r)
	assert.NotEqual(t, "not-a-ulid", w.Header().Get("X-Request-Id"))
}

func TestRecoveredPanicCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := New(config.Config{}, jsonlog.New(&buf, jsonlog.LevelInfo), nil)
	routes := h.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/anything", nil)
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	id := w.Header().Get("X-Request-Id")
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)

	var entry struct {
		Message    string            `json:"message"`
		Properties map[string]string `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "boom", entry.Message)
	assert.Equal(t, id, entry.Properties["request_id"])
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		want   int
	}{
		{"anonymous", http.MethodGet, "/v1/books", "", http.StatusUnauthorized},
		{"unknown token", http.MethodGet, "/v1/books", strings.Repeat("A", 26), http.StatusUnauthorized},
		{"malformed token", http.MethodGet, "/v1/books", "short", http.StatusUnauthorized},
		{"member on admin route", http.MethodGet, "/v1/dashboard", ts.memberToken, http.StatusForbidden},
		{"admin on member route", http.MethodPost, "/v1/borrow-requests", ts.adminToken, http.StatusForbidden},
		{"member lists users", http.MethodGet, "/v1/users", ts.memberToken, http.StatusForbidden},
		{"admin dashboard", http.MethodGet, "/v1/dashboard", ts.adminToken, http.StatusOK},
		{"member books", http.MethodGet, "/v1/books", ts.memberToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.target, tt.token, nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRouterFallbacks(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPut, "/v1/healthcheck", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/books/abc", ts.memberToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDebugVarsRequiresBasicAuth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/debug/vars", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestLoginProfileLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/tokens/authentication", "", map[string]string{"username": "member", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/tokens/authentication", "", map[string]string{"username": "member"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/tokens/authentication", "", map[string]string{"username": "member", "password": "pa55word1234"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var token data.Token
	decodeInto(t, decode(t, w)["authentication_token"], &token)
	require.Len(t, token.Plaintext, 26)

	w = ts.do(t, http.MethodGet, "/v1/profile", token.Plaintext, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user data.User
	decodeInto(t, decode(t, w)["user"], &user)
	assert.Equal(t, ts.member.ID, user.ID)
	assert.Equal(t, data.RoleMember, user.Role)
	assert.NotContains(t, w.Body.String(), "password")

	w = ts.do(t, http.MethodDelete, "/v1/tokens/authentication", token.Plaintext, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodGet, "/v1/profile", token.Plaintext, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDecodeJSONErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `{"book_id": 1, "colour": "red"}`, `body contains unknown key "colour"`},
		{"wrong type", `{"book_id": "one"}`, `body contains incorrect JSON type for field "book_id"`},
		{"empty", ``, "body must not be empty"},
		{"two values", `{"book_id": 1}{"book_id": 2}`, "body must only contain a single JSON value"},
		{"truncated", `{"book_id": 1`, "body contains badly-formed JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/borrow-requests", strings.NewReader(tt.body))
			r.Header.Set("Authorization", "Bearer "+ts.memberToken)
			w := httptest.NewRecorder()
			ts.routes.ServeHTTP(w, r)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, errorMessage(t, w))
		})
	}
}
