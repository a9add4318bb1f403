package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boibabu/api/internal/repositories"
)

type catalogReader struct {
	books repositories.BookRepository
}

// NewCatalogReader exposes catalog pricing backed by the book repository.
func NewCatalogReader(books repositories.BookRepository) (CatalogReader, error) {
	if books == nil {
		return nil, errors.New("catalog reader: book repository is required")
	}
	return &catalogReader{books: books}, nil
}

func (r *catalogReader) GetBookPricingInfo(ctx context.Context, bookID string) (BookPricing, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return BookPricing{}, fmt.Errorf("%w: book id is required", ErrOrderInvalidInput)
	}
	book, err := r.books.FindByID(ctx, bookID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return BookPricing{}, fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
			case repoErr.IsUnavailable():
				return BookPricing{}, fmt.Errorf("%w: catalog: %v", ErrExternalService, err)
			}
		}
		return BookPricing{}, fmt.Errorf("catalog reader: %w", err)
	}
	return BookPricing{
		BookID:   book.ID,
		Title:    book.Title,
		SellerID: book.SellerID,
		Price:    book.Price,
		Stock:    book.Stock,
	}, nil
}
