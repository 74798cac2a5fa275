package dto

import "github.com/emzola/circulation/data"

// CreateUserRequestBody defines a request body for CreateUser service.
type CreateUserRequestBody struct {
	Username string `json:"username" yaml:"username"`
	Name     string `json:"name" yaml:"name"`
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
	Role     string `json:"role" yaml:"role"`
}

// UpdateUserRequestBody defines a request body for UpdateUser service.
type UpdateUserRequestBody struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

// QsListUsers defines query strings for ListUsers service.
type QsListUsers struct {
	Search  string
	Role    string
	Filters data.Filters
}
