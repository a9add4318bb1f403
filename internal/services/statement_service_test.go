package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories/memory"
)

type recordingStatementStorage struct {
	object      string
	contentType string
	data        []byte
	ttl         time.Duration
	uploadErr   error
}

func (s *recordingStatementStorage) Upload(_ context.Context, object, contentType string, data []byte) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.object = object
	s.contentType = contentType
	s.data = append([]byte(nil), data...)
	return nil
}

func (s *recordingStatementStorage) SignedURL(_ context.Context, object string, ttl time.Duration) (SignedDownload, error) {
	s.ttl = ttl
	return SignedDownload{Bucket: "statements", Object: object, URL: "https://storage.example/" + object}, nil
}

func seedStatementOrders(t *testing.T, store *memory.Store) {
	t.Helper()
	paidAt := time.Date(2026, time.March, 20, 10, 0, 0, 0, time.UTC)
	orders := []Order{
		{
			ID: "BB-2026-000001", OrderNumber: "BB-2026-000001", Status: domain.OrderStatusDelivered,
			SellerIDs: []string{"seller-a", "seller-b"},
			SellerPayments: []SellerPayment{
				{SellerID: "seller-a", ItemsTotal: 60000, ShippingCharges: 4200, CommissionRate: 2.5, AdminCommission: 1500, NetAmount: 54300, PaymentStatus: domain.SellerPaymentPaid, PaidBy: "admin-1", PaidAt: &paidAt},
				{SellerID: "seller-b", ItemsTotal: 40000, ShippingCharges: 2800, CommissionRate: 2.5, AdminCommission: 1000, NetAmount: 36200, PaymentStatus: domain.SellerPaymentDue},
			},
			CreatedAt: time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			ID: "BB-2026-000002", OrderNumber: "BB-2026-000002", Status: domain.OrderStatusConfirmed,
			SellerIDs: []string{"seller-a"},
			SellerPayments: []SellerPayment{
				{SellerID: "seller-a", ItemsTotal: 30000, ShippingCharges: 7000, CommissionRate: 5, AdminCommission: 1500, NetAmount: 21500, PaymentStatus: domain.SellerPaymentDue},
			},
			CreatedAt: time.Date(2026, time.April, 2, 10, 0, 0, 0, time.UTC),
		},
	}
	for _, o := range orders {
		require.NoError(t, store.Orders().Insert(context.Background(), o))
	}
}

func TestExportSellerStatementWritesCSV(t *testing.T) {
	store := memory.NewStore()
	seedStatementOrders(t, store)
	storage := &recordingStatementStorage{}
	now := time.Date(2026, time.April, 30, 18, 5, 9, 0, time.UTC)
	svc, err := NewStatementService(StatementServiceDeps{
		Orders:  store.Orders(),
		Storage: storage,
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)

	download, err := svc.ExportSellerStatement(context.Background(), ExportStatementCommand{SellerID: "seller-a", ActorID: "seller-a"})
	require.NoError(t, err)

	require.Equal(t, "statements/sellers/seller-a/statement-20260430T180509Z.csv", storage.object)
	require.Equal(t, "text/csv", storage.contentType)
	require.Equal(t, defaultStatementLink, storage.ttl)
	require.Equal(t, storage.object, download.Object)

	records, err := csv.NewReader(bytes.NewReader(storage.data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, statementHeader, records[0])
	require.Equal(t, []string{
		"BB-2026-000002", "2026-04-02T10:00:00Z", "confirmed", "30000", "7000", "5", "1500", "21500", "due", "", "",
	}, records[1])
	require.Equal(t, []string{
		"BB-2026-000001", "2026-03-10T10:00:00Z", "delivered", "60000", "4200", "2.5", "1500", "54300", "paid", "2026-03-20T10:00:00Z", "admin-1",
	}, records[2])
	require.False(t, strings.Contains(string(storage.data), "seller-b"))
}

func TestExportSellerStatementFiltersByDate(t *testing.T) {
	store := memory.NewStore()
	seedStatementOrders(t, store)
	storage := &recordingStatementStorage{}
	svc, err := NewStatementService(StatementServiceDeps{Orders: store.Orders(), Storage: storage})
	require.NoError(t, err)

	from := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.ExportSellerStatement(context.Background(), ExportStatementCommand{SellerID: "seller-a", From: &from})
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(storage.data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "BB-2026-000002", records[1][0])

	to := from.Add(-time.Hour)
	_, err = svc.ExportSellerStatement(context.Background(), ExportStatementCommand{SellerID: "seller-a", From: &from, To: &to})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}

func TestExportSellerStatementStorageFailure(t *testing.T) {
	store := memory.NewStore()
	storage := &recordingStatementStorage{uploadErr: errors.New("bucket missing")}
	svc, err := NewStatementService(StatementServiceDeps{Orders: store.Orders(), Storage: storage})
	require.NoError(t, err)

	_, err = svc.ExportSellerStatement(context.Background(), ExportStatementCommand{SellerID: "seller-a"})
	require.ErrorIs(t, err, ErrExternalService)

	_, err = svc.ExportSellerStatement(context.Background(), ExportStatementCommand{SellerID: "seller/../b"})
	require.ErrorIs(t, err, ErrOrderInvalidInput)
}
