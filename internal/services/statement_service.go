package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	domain "github.com/boibabu/api/internal/domain"
	pstorage "github.com/boibabu/api/internal/platform/storage"
	"github.com/boibabu/api/internal/repositories"
)

const (
	statementPageSize    = 100
	statementMaxOrders   = 5000
	defaultStatementLink = 10 * time.Minute
)

var statementHeader = []string{
	"order_number", "ordered_at", "order_status", "items_total", "shipping_charges",
	"commission_rate", "admin_commission", "net_amount", "payment_status", "paid_at", "paid_by",
}

// StatementServiceDeps bundles collaborators required by the statement service.
type StatementServiceDeps struct {
	Orders  repositories.OrderRepository
	Storage StatementStorage
	LinkTTL time.Duration
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type statementService struct {
	orders  repositories.OrderRepository
	storage StatementStorage
	linkTTL time.Duration
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewStatementService exports seller settlements as CSV files in object storage.
func NewStatementService(deps StatementServiceDeps) (StatementService, error) {
	if deps.Orders == nil {
		return nil, errors.New("statement service: order repository is required")
	}
	if deps.Storage == nil {
		return nil, errors.New("statement service: storage is required")
	}
	ttl := deps.LinkTTL
	if ttl <= 0 {
		ttl = defaultStatementLink
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &statementService{
		orders:  deps.Orders,
		storage: deps.Storage,
		linkTTL: ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *statementService) ExportSellerStatement(ctx context.Context, cmd ExportStatementCommand) (SignedDownload, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" {
		return SignedDownload{}, fmt.Errorf("%w: seller id is required", ErrOrderInvalidInput)
	}
	if cmd.From != nil && cmd.To != nil && cmd.To.Before(*cmd.From) {
		return SignedDownload{}, fmt.Errorf("%w: date range end precedes start", ErrOrderInvalidInput)
	}

	rows, err := s.collect(ctx, sellerID, domain.TimeRange{From: cmd.From, To: cmd.To})
	if err != nil {
		return SignedDownload{}, err
	}
	data, err := encodeStatement(rows)
	if err != nil {
		return SignedDownload{}, err
	}

	now := s.clock()
	object, err := pstorage.StatementObject(sellerID, now)
	if err != nil {
		return SignedDownload{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	if err := s.storage.Upload(ctx, object, "text/csv", data); err != nil {
		return SignedDownload{}, fmt.Errorf("%w: upload statement: %v", ErrExternalService, err)
	}
	download, err := s.storage.SignedURL(ctx, object, s.linkTTL)
	if err != nil {
		return SignedDownload{}, fmt.Errorf("%w: sign statement: %v", ErrExternalService, err)
	}
	s.logger(ctx, "statement.exported", map[string]any{
		"sellerId": sellerID,
		"rows":     len(rows),
		"object":   object,
		"actor":    cmd.ActorID,
	})
	return download, nil
}

func (s *statementService) collect(ctx context.Context, sellerID string, dates domain.TimeRange) ([]SellerSettlement, error) {
	var rows []SellerSettlement
	token := ""
	for scanned := 0; scanned < statementMaxOrders; {
		page, err := s.orders.List(ctx, repositories.OrderListFilter{
			SellerID:   sellerID,
			DateRange:  dates,
			Pagination: Pagination{PageSize: statementPageSize, PageToken: token},
		})
		if err != nil {
			return nil, fmt.Errorf("statement service: list orders: %w", err)
		}
		scanned += len(page.Items)
		rows = append(rows, sellerSettlements(page.Items, sellerID, nil)...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	return rows, nil
}

func encodeStatement(rows []SellerSettlement) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(statementHeader); err != nil {
		return nil, fmt.Errorf("statement service: encode: %w", err)
	}
	for _, row := range rows {
		p := row.Payment
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			row.OrderNumber,
			row.OrderedAt.UTC().Format(time.RFC3339),
			string(row.OrderStatus),
			strconv.FormatInt(p.ItemsTotal, 10),
			strconv.FormatInt(p.ShippingCharges, 10),
			strconv.FormatFloat(p.CommissionRate, 'f', -1, 64),
			strconv.FormatInt(p.AdminCommission, 10),
			strconv.FormatInt(p.NetAmount, 10),
			string(p.PaymentStatus),
			paidAt,
			p.PaidBy,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("statement service: encode: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("statement service: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// sellerSettlements extracts the seller's payment from each order, optionally filtered by status.
func sellerSettlements(orders []Order, sellerID string, statuses []domain.SellerPaymentStatus) []SellerSettlement {
	out := make([]SellerSettlement, 0, len(orders))
	for _, order := range orders {
		for _, payment := range order.SellerPayments {
			if payment.SellerID != sellerID {
				continue
			}
			if len(statuses) > 0 && !slices.Contains(statuses, payment.PaymentStatus) {
				continue
			}
			out = append(out, SellerSettlement{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				OrderStatus: order.Status,
				OrderedAt:   order.CreatedAt,
				Payment:     payment,
			})
		}
	}
	return out
}
