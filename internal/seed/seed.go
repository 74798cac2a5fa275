package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/emzola/circulation/data"
	"github.com/emzola/circulation/data/dto"
	"github.com/emzola/circulation/internal/jsonlog"
	"github.com/emzola/circulation/service"
	"gopkg.in/yaml.v3"
)

// File is the bootstrap data for an empty installation.
type File struct {
	Admin dto.CreateUserRequestBody   `yaml:"admin"`
	Books []dto.CreateBookRequestBody `yaml:"books"`
}

// Seeder is the part of the service used to apply a seed file.
type Seeder interface {
	CreateUser(ctx context.Context, requestBody dto.CreateUserRequestBody) (*data.User, error)
	CreateBook(ctx context.Context, requestBody dto.CreateBookRequestBody) (*data.Book, error)
	ListBooks(ctx context.Context, search, status string, filters data.Filters) ([]*data.Book, data.Metadata, error)
}

func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &file, nil
}

// Apply creates the admin account unless the username is taken, and the books
// only when the catalogue is empty, so it is safe to run on every start.
func Apply(ctx context.Context, s Seeder, file *File, logger *jsonlog.Logger) error {
	if file.Admin.Username != "" {
		file.Admin.Role = data.RoleAdmin
		_, err := s.CreateUser(ctx, file.Admin)
		var validationError *service.ValidationError
		switch {
		case err == nil:
			logger.PrintInfo("seeded admin user", map[string]string{"username": file.Admin.Username})
		case errors.As(err, &validationError) && len(validationError.Errors) == 1 && validationError.Errors["username"] != "":
			// Already seeded.
		default:
			return fmt.Errorf("seed admin: %w", err)
		}
	}
	if len(file.Books) == 0 {
		return nil
	}
	filters := data.Filters{Page: 1, PageSize: 1, Sort: "id", SortSafeList: []string{"id"}}
	_, metadata, err := s.ListBooks(ctx, "", "", filters)
	if err != nil {
		return err
	}
	if metadata.TotalRecords > 0 {
		return nil
	}
	for _, book := range file.Books {
		if _, err := s.CreateBook(ctx, book); err != nil {
			return fmt.Errorf("seed book %q: %w", book.Title, err)
		}
	}
	logger.PrintInfo("seeded books", map[string]string{"count": fmt.Sprint(len(file.Books))})
	return nil
}
