package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock movements.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorBookNotFound indicates the book document does not exist.
	StockErrorBookNotFound StockErrorCode = "stock_book_not_found"
	// StockErrorInvalidQuantity indicates a zero or negative movement was requested.
	StockErrorInvalidQuantity StockErrorCode = "stock_invalid_quantity"
)

// StockError wraps stock-specific failures with machine readable codes. For
// StockErrorInsufficient, BookID, Requested and Available describe the first line that failed.
type StockError struct {
	Op        string
	Code      StockErrorCode
	Message   string
	BookID    string
	Requested int
	Available int
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports that bookID cannot cover the requested quantity.
func NewInsufficientStockError(op, bookID string, requested, available int) *StockError {
	return &StockError{
		Op:        op,
		Code:      StockErrorInsufficient,
		Message:   fmt.Sprintf("insufficient stock for %s: requested %d, available %d", bookID, requested, available),
		BookID:    bookID,
		Requested: requested,
		Available: available,
	}
}

// WithBook attaches the failing operation and book to the error.
func (e *StockError) WithBook(op, bookID string) *StockError {
	if e == nil {
		return nil
	}
	e.Op = op
	e.BookID = bookID
	return e
}
