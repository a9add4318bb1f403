package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/boibabu/api/internal/domain"
	pfirestore "github.com/boibabu/api/internal/platform/firestore"
	"github.com/boibabu/api/internal/repositories"
)

const booksCollection = "books"

type bookDocument struct {
	Title     string    `firestore:"title"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	SellerID  string    `firestore:"sellerId"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func decodeBookDocument(id string, doc bookDocument) domain.Book {
	return domain.Book{
		ID:        id,
		Title:     doc.Title,
		Price:     doc.Price,
		Stock:     doc.Stock,
		SellerID:  doc.SellerID,
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

// BookRepository reads the catalog maintained by the catalog service.
type BookRepository struct {
	base *pfirestore.BaseRepository[bookDocument]
}

// NewBookRepository constructs a Firestore-backed book reader.
func NewBookRepository(provider *pfirestore.Provider) (*BookRepository, error) {
	if provider == nil {
		return nil, errors.New("book repository: firestore provider is required")
	}
	return &BookRepository{
		base: pfirestore.NewBaseRepository[bookDocument](provider, booksCollection),
	}, nil
}

// FindByID loads a single book.
func (r *BookRepository) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	if r == nil || r.base == nil {
		return domain.Book{}, errors.New("book repository not initialised")
	}
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return domain.Book{}, errors.New("book repository: book id is required")
	}
	doc, err := r.base.Get(ctx, bookID)
	if err != nil {
		return domain.Book{}, err
	}
	return decodeBookDocument(doc.ID, doc.Data), nil
}

// StockRepository adjusts the stock field of book documents.
type StockRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[bookDocument]
	now      func() time.Time
}

// NewStockRepository constructs a Firestore-backed stock mover.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository: firestore provider is required")
	}
	return &StockRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[bookDocument](provider, booksCollection),
		now:      time.Now,
	}, nil
}

// Decrement reserves stock for every line or fails without writing. All book documents are
// read before any write so the call can join a caller transaction that has not written yet.
func (r *StockRepository) Decrement(ctx context.Context, lines []repositories.StockLine) error {
	if r == nil || r.provider == nil {
		return errors.New("stock repository not initialised")
	}
	merged, err := mergeStockLines("stock.decrement", lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	return r.inTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make([]*firestore.DocumentRef, 0, len(merged))
		for _, line := range merged {
			ref, err := r.base.DocumentRef(ctx, line.BookID)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}

		snaps, err := tx.GetAll(refs)
		if err != nil {
			return pfirestore.WrapError("stock.decrement", err)
		}

		remaining := make([]int, len(merged))
		for i, snap := range snaps {
			line := merged[i]
			if snap == nil || !snap.Exists() {
				return repositories.NewStockError(repositories.StockErrorBookNotFound,
					fmt.Sprintf("book %s not found", line.BookID), nil).WithBook("stock.decrement", line.BookID)
			}
			var doc bookDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode book %s: %w", line.BookID, err)
			}
			if doc.Stock < line.Quantity {
				return repositories.NewInsufficientStockError("stock.decrement", line.BookID, line.Quantity, doc.Stock)
			}
			remaining[i] = doc.Stock - line.Quantity
		}

		now := r.now().UTC()
		for i, ref := range refs {
			if err := tx.Update(ref, []firestore.Update{
				{Path: "stock", Value: remaining[i]},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return pfirestore.WrapError("stock.decrement", err)
			}
		}
		return nil
	})
}

// Increment returns stock for every line. It uses server-side increments and performs no reads;
// a missing book surfaces as a not-found error when the transaction commits.
func (r *StockRepository) Increment(ctx context.Context, lines []repositories.StockLine) error {
	if r == nil || r.provider == nil {
		return errors.New("stock repository not initialised")
	}
	merged, err := mergeStockLines("stock.increment", lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}

	return r.inTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.now().UTC()
		for _, line := range merged {
			ref, err := r.base.DocumentRef(ctx, line.BookID)
			if err != nil {
				return err
			}
			if err := tx.Update(ref, []firestore.Update{
				{Path: "stock", Value: firestore.Increment(line.Quantity)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return pfirestore.WrapError("stock.increment", err)
			}
		}
		return nil
	})
}

func (r *StockRepository) inTransaction(ctx context.Context, fn pfirestore.TxFunc) error {
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	return r.provider.RunTransaction(ctx, fn)
}

// mergeStockLines folds duplicate book ids and orders lines by id so concurrent transactions
// touch documents in the same order.
func mergeStockLines(op string, lines []repositories.StockLine) ([]repositories.StockLine, error) {
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		bookID := strings.TrimSpace(line.BookID)
		if bookID == "" {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "book id is required", nil).WithBook(op, "")
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidQuantity,
				fmt.Sprintf("quantity for %s must be positive", bookID), nil).WithBook(op, bookID)
		}
		totals[bookID] += line.Quantity
	}
	merged := make([]repositories.StockLine, 0, len(totals))
	for bookID, qty := range totals {
		merged = append(merged, repositories.StockLine{BookID: bookID, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].BookID < merged[j].BookID })
	return merged, nil
}
