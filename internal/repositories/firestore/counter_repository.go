package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/boibabu/api/internal/platform/firestore"
)

const countersCollection = "counters"

// sequenceDoc is stored at counters/{sequence}, e.g. counters/orders:2026.
type sequenceDoc struct {
	Last      int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out gap-free sequence numbers. Concurrent callers contend on the
// sequence document and Firestore retries the losers.
type CounterRepository struct {
	provider  *pfirestore.Provider
	sequences *pfirestore.BaseRepository[sequenceDoc]
	clock     func() time.Time
}

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("firestore counters: provider is required")
	}
	return &CounterRepository{
		provider:  provider,
		sequences: pfirestore.NewBaseRepository[sequenceDoc](provider, countersCollection),
		clock:     time.Now,
	}, nil
}

func (r *CounterRepository) Next(ctx context.Context, counterID string) (int64, error) {
	sequence := strings.TrimSpace(counterID)
	if sequence == "" {
		return 0, errors.New("firestore counters: id is required")
	}

	var issued int64
	txErr := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.sequences.DocumentRef(ctx, sequence)
		if err != nil {
			return err
		}
		last, err := lastIssued(tx, ref)
		if err != nil {
			return err
		}
		issued = last + 1
		return tx.Set(ref, sequenceDoc{Last: issued, UpdatedAt: r.clock().UTC()})
	})
	if txErr != nil {
		return 0, pfirestore.WrapError("counters.next", txErr)
	}
	return issued, nil
}

// lastIssued reads the current value. A sequence nobody has drawn from yet reads as zero.
func lastIssued(tx *firestore.Transaction, ref *firestore.DocumentRef) (int64, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var doc sequenceDoc
	if err := snap.DataTo(&doc); err != nil {
		return 0, err
	}
	return doc.Last, nil
}
