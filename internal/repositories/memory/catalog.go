package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories"
)

type bookRepository struct{ s *Store }

func (r bookRepository) FindByID(_ context.Context, bookID string) (domain.Book, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	book, ok := r.s.books[strings.TrimSpace(bookID)]
	if !ok {
		return domain.Book{}, notFound("books.get", "book %s", bookID)
	}
	return book, nil
}

type stockRepository struct{ s *Store }

func (r stockRepository) Decrement(ctx context.Context, lines []repositories.StockLine) error {
	totals, err := sumLines("stock.decrement", lines)
	if err != nil {
		return err
	}
	return r.s.write(ctx, func() error {
		for _, line := range totals {
			book, ok := r.s.books[line.BookID]
			if !ok {
				return repositories.NewStockError(repositories.StockErrorBookNotFound,
					fmt.Sprintf("book %s not found", line.BookID), nil).WithBook("stock.decrement", line.BookID)
			}
			if book.Stock < line.Quantity {
				return repositories.NewInsufficientStockError("stock.decrement", line.BookID, line.Quantity, book.Stock)
			}
		}
		now := r.s.now().UTC()
		for _, line := range totals {
			book := r.s.books[line.BookID]
			book.Stock -= line.Quantity
			book.UpdatedAt = now
			r.s.books[line.BookID] = book
		}
		return nil
	})
}

func (r stockRepository) Increment(ctx context.Context, lines []repositories.StockLine) error {
	totals, err := sumLines("stock.increment", lines)
	if err != nil {
		return err
	}
	return r.s.write(ctx, func() error {
		for _, line := range totals {
			if _, ok := r.s.books[line.BookID]; !ok {
				return repositories.NewStockError(repositories.StockErrorBookNotFound,
					fmt.Sprintf("book %s not found", line.BookID), nil).WithBook("stock.increment", line.BookID)
			}
		}
		now := r.s.now().UTC()
		for _, line := range totals {
			book := r.s.books[line.BookID]
			book.Stock += line.Quantity
			book.UpdatedAt = now
			r.s.books[line.BookID] = book
		}
		return nil
	})
}

// sumLines merges duplicate books while keeping first-seen order for error reporting.
func sumLines(op string, lines []repositories.StockLine) ([]repositories.StockLine, error) {
	index := make(map[string]int, len(lines))
	out := make([]repositories.StockLine, 0, len(lines))
	for _, line := range lines {
		bookID := strings.TrimSpace(line.BookID)
		if bookID == "" || line.Quantity <= 0 {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidQuantity,
				fmt.Sprintf("invalid stock line %q x %d", bookID, line.Quantity), nil).WithBook(op, bookID)
		}
		if i, ok := index[bookID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[bookID] = len(out)
		out = append(out, repositories.StockLine{BookID: bookID, Quantity: line.Quantity})
	}
	return out, nil
}

type couponRepository struct{ s *Store }

func (r couponRepository) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	coupon, ok := r.s.coupons[normalizeCode(code)]
	if !ok {
		return domain.Coupon{}, notFound("coupons.get", "coupon %s", code)
	}
	return coupon, nil
}

func (r couponRepository) Redeem(ctx context.Context, code string, at time.Time) error {
	return r.adjustUsage(ctx, "coupons.redeem", code, at, func(c *domain.Coupon) error {
		if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
			return repositories.ErrCouponUsageLimit
		}
		c.UsedCount++
		return nil
	})
}

func (r couponRepository) Release(ctx context.Context, code string, at time.Time) error {
	return r.adjustUsage(ctx, "coupons.release", code, at, func(c *domain.Coupon) error {
		c.UsedCount = max(0, c.UsedCount-1)
		return nil
	})
}

func (r couponRepository) adjustUsage(ctx context.Context, op, code string, at time.Time, apply func(*domain.Coupon) error) error {
	code = normalizeCode(code)
	return r.s.write(ctx, func() error {
		coupon, ok := r.s.coupons[code]
		if !ok {
			return notFound(op, "coupon %s", code)
		}
		if err := apply(&coupon); err != nil {
			return err
		}
		coupon.UpdatedAt = at.UTC()
		r.s.coupons[code] = coupon
		return nil
	})
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
