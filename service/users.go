package service

import (
	"context"
	"errors"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/data/dto"
	"github.com/emzola/circulation/internal/validator"
	"github.com/emzola/circulation/repository"
)

type users interface {
	CreateUser(ctx context.Context, requestBody dto.CreateUserRequestBody) (*data.User, error)
	ShowUser(ctx context.Context, userID int64) (*data.User, error)
	ListUsers(ctx context.Context, search, role string, filters data.Filters) ([]*data.User, data.Metadata, error)
	UpdateUser(ctx context.Context, userID int64, requestBody dto.UpdateUserRequestBody) (*data.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	GetUserForToken(ctx context.Context, tokenScope, tokenPlaintext string) (*data.User, error)
}

// CreateUser service creates a new admin or member account. Role defaults to member.
func (s *service) CreateUser(ctx context.Context, requestBody dto.CreateUserRequestBody) (*data.User, error) {
	user := &data.User{
		Username: requestBody.Username,
		Name:     requestBody.Name,
		Email:    requestBody.Email,
		Role:     requestBody.Role,
	}
	if user.Role == "" {
		user.Role = data.RoleMember
	}
	err := user.Password.Set(requestBody.Password)
	if err != nil {
		return nil, err
	}
	v := validator.New()
	if data.ValidateUser(v, user); !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	err = s.repo.CreateUser(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateRecord):
			v.AddError("username", "a user with this username already exists")
			return nil, failedValidation(v.Errors)
		default:
			return nil, err
		}
	}
	s.invalidateDashboard()
	return user, nil
}

// ShowUser service shows the details of a specific user.
func (s *service) ShowUser(ctx context.Context, userID int64) (*data.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return user, nil
}

// ListUsers service retrieves a paginated list of users.
func (s *service) ListUsers(ctx context.Context, search, role string, filters data.Filters) ([]*data.User, data.Metadata, error) {
	v := validator.New()
	data.ValidateFilters(v, filters)
	if role != "" {
		data.ValidateRole(v, role)
	}
	if !v.Valid() {
		return nil, data.Metadata{}, failedValidation(v.Errors)
	}
	return s.repo.GetAllUsers(ctx, search, role, filters)
}

// UpdateUser service updates the details of a specific user. Only fields
// present in the request body change.
func (s *service) UpdateUser(ctx context.Context, userID int64, requestBody dto.UpdateUserRequestBody) (*data.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	if requestBody.Username != nil {
		user.Username = *requestBody.Username
	}
	if requestBody.Name != nil {
		user.Name = *requestBody.Name
	}
	if requestBody.Email != nil {
		user.Email = *requestBody.Email
	}
	if requestBody.Role != nil {
		user.Role = *requestBody.Role
	}
	if requestBody.Password != nil {
		if err := user.Password.Set(*requestBody.Password); err != nil {
			return nil, err
		}
	}
	v := validator.New()
	if data.ValidateUser(v, user); !v.Valid() {
		return nil, failedValidation(v.Errors)
	}
	err = s.repo.UpdateUser(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			return nil, ErrEditConflict
		case errors.Is(err, repository.ErrDuplicateRecord):
			v.AddError("username", "a user with this username already exists")
			return nil, failedValidation(v.Errors)
		default:
			return nil, err
		}
	}
	return user, nil
}

// DeleteUser service deletes a specific user. Users referenced by borrow
// requests are kept so loan history stays intact.
func (s *service) DeleteUser(ctx context.Context, userID int64) error {
	err := s.repo.DeleteUser(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return ErrRecordNotFound
		case errors.Is(err, repository.ErrRecordInUse):
			return ErrUserInUse
		default:
			return err
		}
	}
	s.invalidateDashboard()
	return nil
}

// GetUserForToken service retrieves the user owning a valid token.
func (s *service) GetUserForToken(ctx context.Context, tokenScope, tokenPlaintext string) (*data.User, error) {
	user, err := s.repo.GetUserForToken(ctx, tokenScope, tokenPlaintext)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return user, nil
}
