package service

import (
	"context"
	"testing"
	"time"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/data/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := dto.CreateUserRequestBody{Username: "ada", Name: "Ada Lovelace", Email: "ada@example.com", Password: "analytical1"}

	user, err := f.svc.CreateUser(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, data.RoleMember, user.Role)
	match, err := user.Password.Matches("analytical1")
	require.NoError(t, err)
	assert.True(t, match)

	_, err = f.svc.CreateUser(ctx, body)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "a user with this username already exists", validationErr.Errors["username"])

	body.Username, body.Role = "babbage", "librarian"
	_, err = f.svc.CreateUser(ctx, body)
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Errors, "role")
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.UpdateUser(ctx, f.member.ID, dto.UpdateUserRequestBody{Name: ptr("Member One"), Password: ptr("new-password")})
	require.NoError(t, err)
	assert.Equal(t, "Member One", user.Name)
	assert.Equal(t, "member", user.Username)
	match, err := user.Password.Matches("new-password")
	require.NoError(t, err)
	assert.True(t, match)

	_, err = f.svc.UpdateUser(ctx, f.member.ID, dto.UpdateUserRequestBody{Username: ptr("admin")})
	assert.ErrorIs(t, err, ErrFailedValidation)
	_, err = f.svc.UpdateUser(ctx, 999, dto.UpdateUserRequestBody{})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	idle := f.user(t, "idle", data.RoleMember)
	book := f.book(t, "Dune", 1)
	f.request(t, f.member.ID, book.ID)

	err := f.svc.DeleteUser(ctx, f.member.ID)
	assert.ErrorIs(t, err, ErrUserInUse)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, f.svc.DeleteUser(ctx, idle.ID))
	assert.ErrorIs(t, f.svc.DeleteUser(ctx, idle.ID), ErrRecordNotFound)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	filters := data.Filters{Page: 1, PageSize: 10, Sort: "id", SortSafeList: []string{"id"}}

	members, metadata, err := f.svc.ListUsers(context.Background(), "", data.RoleMember, filters)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, f.member.ID, members[0].ID)
	assert.Equal(t, 1, metadata.TotalRecords)

	_, _, err = f.svc.ListUsers(context.Background(), "", "guest", filters)
	assert.ErrorIs(t, err, ErrFailedValidation)
}

func TestAuthenticationTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.svc.CreateAuthenticationToken(ctx, "member", "pa55word1234")
	require.NoError(t, err)
	assert.Len(t, token.Plaintext, 26)

	user, err := f.svc.GetUserForToken(ctx, data.ScopeAuthentication, token.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, f.member.ID, user.ID)

	_, err = f.svc.CreateAuthenticationToken(ctx, "member", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.CreateAuthenticationToken(ctx, "nobody", "pa55word1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.CreateAuthenticationToken(ctx, "", "")
	assert.ErrorIs(t, err, ErrFailedValidation)

	require.NoError(t, f.svc.DeleteAuthenticationToken(ctx, f.member.ID))
	_, err = f.svc.GetUserForToken(ctx, data.ScopeAuthentication, token.Plaintext)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.svc.CreateAuthenticationToken(ctx, "member", "pa55word1234")
	require.NoError(t, err)

	f.svc.purgeExpiredTokens(ctx)
	_, err = f.svc.GetUserForToken(ctx, data.ScopeAuthentication, token.Plaintext)
	require.NoError(t, err)

	f.clock.Advance(100 * 365 * 24 * time.Hour)
	f.svc.purgeExpiredTokens(ctx)
	_, err = f.svc.GetUserForToken(ctx, data.ScopeAuthentication, token.Plaintext)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
