package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boibabu/api/internal/repositories"
)

// StockLedger moves book stock on behalf of an order. Each order decrements at most once and
// restores at most once, guarded by the order's Stock flags.
type StockLedger struct {
	stock repositories.StockRepository
	clock func() time.Time
}

// NewStockLedger wraps the stock repository.
func NewStockLedger(stock repositories.StockRepository, clock func() time.Time) (*StockLedger, error) {
	if stock == nil {
		return nil, errors.New("stock ledger: stock repository is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &StockLedger{
		stock: stock,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Reserve decrements stock for every item of the order or for none of them.
func (l *StockLedger) Reserve(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if order.Stock.Deducted {
		return nil
	}
	if err := l.stock.Decrement(ctx, stockLines(order)); err != nil {
		return mapStockError(err)
	}
	now := l.clock()
	order.Stock.Deducted = true
	order.Stock.DeductedAt = &now
	return nil
}

// Restore returns the order's quantities. Orders that never decremented, or already restored,
// are left untouched.
func (l *StockLedger) Restore(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("%w: order is required", ErrOrderInvalidInput)
	}
	if !order.Stock.Deducted || order.Stock.Restored {
		return nil
	}
	if err := l.stock.Increment(ctx, stockLines(order)); err != nil {
		return mapStockError(err)
	}
	now := l.clock()
	order.Stock.Restored = true
	order.Stock.RestoredAt = &now
	return nil
}

func stockLines(order *Order) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, repositories.StockLine{BookID: item.BookID, Quantity: item.Quantity})
	}
	return lines
}

func mapStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
		case repositories.StockErrorBookNotFound:
			return fmt.Errorf("%w: %s", ErrBookNotFound, stockErr.BookID)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	}
	return fmt.Errorf("stock ledger: %w", err)
}
