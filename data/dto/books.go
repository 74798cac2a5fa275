package dto

import "github.com/emzola/circulation/data"

// CreateBookRequestBody defines a request body for CreateBook service.
type CreateBookRequestBody struct {
	Title      string `json:"title" yaml:"title"`
	Author     string `json:"author" yaml:"author"`
	Isbn       string `json:"isbn" yaml:"isbn"`
	Category   string `json:"category" yaml:"category"`
	Publisher  string `json:"publisher" yaml:"publisher"`
	Year       int32  `json:"year" yaml:"year"`
	TotalStock int32  `json:"total_stock" yaml:"total_stock"`
}

// UpdateBookRequestBody defines a request body for UpdateBook service.
type UpdateBookRequestBody struct {
	Title      *string `json:"title"`
	Author     *string `json:"author"`
	Isbn       *string `json:"isbn"`
	Category   *string `json:"category"`
	Publisher  *string `json:"publisher"`
	Year       *int32  `json:"year"`
	TotalStock *int32  `json:"total_stock"`
	Status     *string `json:"status"`
}

// QsListBooks defines query strings for ListBooks service.
type QsListBooks struct {
	Search  string
	Status  string
	Filters data.Filters
}
