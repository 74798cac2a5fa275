package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/internal/validator"
	"github.com/emzola/circulation/repository"
)

const (
	// authenticationTokenTTL is how long a bearer token stays valid.
	authenticationTokenTTL = 24 * time.Hour
	tokenCleanupInterval   = time.Hour
)

type tokens interface {
	CreateAuthenticationToken(ctx context.Context, username, password string) (*data.Token, error)
	DeleteAuthenticationToken(ctx context.Context, userID int64) error
	StartTokenCleanup(ctx context.Context)
}

// CreateAuthenticationToken service checks a username and password and issues a bearer token.
func (s *service) CreateAuthenticationToken(ctx context.Context, username, password string) (*data.Token, error) {
	v := validator.New()
	v.Check(username != "", "username", "must be provided")
	data.ValidatePasswordPlaintext(v, password)
	if !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrInvalidCredentials
		default:
			return nil, err
		}
	}
	match, err := user.Password.Matches(password)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	return s.repo.CreateNewToken(ctx, user.ID, authenticationTokenTTL, data.ScopeAuthentication)
}

// DeleteAuthenticationToken deletes all authentication tokens for a user.
func (s *service) DeleteAuthenticationToken(ctx context.Context, userID int64) error {
	return s.repo.DeleteAllTokensForUser(ctx, data.ScopeAuthentication, userID)
}

// StartTokenCleanup deletes expired tokens every hour until ctx is done.
func (s *service) StartTokenCleanup(ctx context.Context) {
	s.background(func() {
		ticker := time.NewTicker(tokenCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeExpiredTokens(ctx)
			}
		}
	})
}

func (s *service) purgeExpiredTokens(ctx context.Context) {
	n, err := s.repo.DeleteExpiredTokens(ctx, s.clock.Now())
	if err != nil {
		s.logger.PrintError(err, nil)
		return
	}
	if n > 0 {
		s.logger.PrintInfo("expired tokens deleted", map[string]string{"count": strconv.FormatInt(n, 10)})
	}
}
