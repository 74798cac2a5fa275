package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emzola/circulation/data"
)

type users interface {
	CreateUser(ctx context.Context, user *data.User) error
	GetUserByID(ctx context.Context, ID int64) (*data.User, error)
	GetUserByUsername(ctx context.Context, username string) (*data.User, error)
	GetAllUsers(ctx context.Context, search, role string, filters data.Filters) ([]*data.User, data.Metadata, error)
	UpdateUser(ctx context.Context, user *data.User) error
	DeleteUser(ctx context.Context, ID int64) error
	GetUserForToken(ctx context.Context, tokenScope, tokenPlaintext string) (*data.User, error)
}

// CreateUser creates a new user.
func (r *repository) CreateUser(ctx context.Context, user *data.User) error {
	query := `
		INSERT INTO users (username, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at, version`
	args := []interface{}{user.Username, user.Name, user.Email, user.Password.Hash, user.Role}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		switch {
		case pqCode(err) == pqUniqueViolation:
			return ErrDuplicateRecord
		default:
			return err
		}
	}
	return nil
}

// GetUserByID retrieves a user record by its ID.
func (r *repository) GetUserByID(ctx context.Context, ID int64) (*data.User, error) {
	if ID < 1 {
		return nil, ErrRecordNotFound
	}
	query := `
		SELECT id, created_at, updated_at, username, name, email, password_hash, role, version
		FROM users
		WHERE id = $1`
	return r.getUser(ctx, query, ID)
}

// GetUserByUsername retrieves a user record by its username.
func (r *repository) GetUserByUsername(ctx context.Context, username string) (*data.User, error) {
	query := `
		SELECT id, created_at, updated_at, username, name, email, password_hash, role, version
		FROM users
		WHERE username = $1`
	return r.getUser(ctx, query, username)
}

func (r *repository) getUser(ctx context.Context, query string, arg any) (*data.User, error) {
	var user data.User
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.Password.Hash,
		&user.Role,
		&user.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &user, nil
}

// GetAllUsers retrieves a paginated list of users, optionally filtered by role
// and a case-insensitive search over username, name and email.
func (r *repository) GetAllUsers(ctx context.Context, search, role string, filters data.Filters) ([]*data.User, data.Metadata, error) {
	where := `
		WHERE (username ILIKE $1 OR name ILIKE $1 OR email ILIKE $1)
		AND (role = $2 OR $2 = '')`
	args := []interface{}{"%" + search + "%", role}
	totalRecords, err := r.count(ctx, "SELECT count(*) FROM users"+where, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	query := fmt.Sprintf(`
		SELECT id, created_at, updated_at, username, name, email, role, version
		FROM users`+where+`
		ORDER BY %s %s, id ASC
		LIMIT $3 OFFSET $4`,
		filters.SortColumn(), filters.SortDirection(),
	)
	args = append(args, filters.Limit(), filters.Offset())
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, data.Metadata{}, err
	}
	defer rows.Close()
	users := []*data.User{}
	for rows.Next() {
		var user data.User
		err := rows.Scan(
			&user.ID,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.Username,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.Version,
		)
		if err != nil {
			return nil, data.Metadata{}, err
		}
		users = append(users, &user)
	}
	if err = rows.Err(); err != nil {
		return nil, data.Metadata{}, err
	}
	metadata := data.CalculateMetadata(totalRecords, filters.Page, filters.PageSize)
	return users, metadata, nil
}

// UpdateUser updates a user record.
func (r *repository) UpdateUser(ctx context.Context, user *data.User) error {
	query := `
		UPDATE users
		SET username = $1, name = $2, email = $3, password_hash = $4, role = $5, updated_at = NOW(), version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING updated_at, version`
	args := []interface{}{
		user.Username,
		user.Name,
		user.Email,
		user.Password.Hash,
		user.Role,
		user.ID,
		user.Version,
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&user.UpdatedAt, &user.Version)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrEditConflict
		case pqCode(err) == pqUniqueViolation:
			return ErrDuplicateRecord
		default:
			return err
		}
	}
	return nil
}

// DeleteUser deletes a user record. Users holding a pending or approved
// request cannot be deleted, and neither can users with loan history.
func (r *repository) DeleteUser(ctx context.Context, ID int64) error {
	if ID < 1 {
		return ErrRecordNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.runInTx(ctx, func(ctx context.Context, tx DBTX) error {
		// Locking the row makes concurrent request inserts for this member wait.
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, ID).Scan(&id)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return ErrRecordNotFound
			default:
				return err
			}
		}
		var active bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM borrow_requests
				WHERE member_id = $1 AND status IN ('pending', 'approved')
			)`, ID).Scan(&active)
		if err != nil {
			return err
		}
		if active {
			return ErrRecordInUse
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, ID)
		if err != nil {
			if pqCode(err) == pqForeignKeyViolation {
				return ErrRecordInUse
			}
			return err
		}
		return nil
	})
}

// GetUserForToken retrieves the user owning an unexpired token of the given scope.
func (r *repository) GetUserForToken(ctx context.Context, tokenScope, tokenPlaintext string) (*data.User, error) {
	tokenHash := sha256.Sum256([]byte(tokenPlaintext))
	query := `
		SELECT users.id, users.created_at, users.updated_at, users.username, users.name, users.email, users.password_hash, users.role, users.version
		FROM users
		INNER JOIN tokens
		ON users.id = tokens.user_id
		WHERE tokens.hash = $1
		AND tokens.scope = $2
		AND tokens.expiry > $3`
	args := []interface{}{tokenHash[:], tokenScope, time.Now()}
	var user data.User
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.Password.Hash,
		&user.Role,
		&user.Version,
	)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrRecordNotFound
		default:
			return nil, err
		}
	}
	return &user, nil
}
