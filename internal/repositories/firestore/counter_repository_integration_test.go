//go:build integration

package firestore

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

func TestCounterRepositoryIntegration(t *testing.T) {
	repo, err := NewCounterRepository(newEmulatorProvider(t, "counter-test"))
	if err != nil {
		t.Fatalf("NewCounterRepository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const draws = 16
	issued := make([]int64, draws)
	g, gctx := errgroup.WithContext(ctx)
	for i := range issued {
		g.Go(func() error {
			n, err := repo.Next(gctx, "orders:2026")
			issued[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent draws: %v", err)
	}

	slices.Sort(issued)
	want := make([]int64, draws)
	for i := range want {
		want[i] = int64(i + 1)
	}
	if diff := cmp.Diff(want, issued); diff != "" {
		t.Fatalf("concurrent draws must produce 1..n without gaps (-want +got):\n%s", diff)
	}

	first, err := repo.Next(ctx, "orders:2027")
	if err != nil {
		t.Fatalf("Next orders:2027: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected each year to restart at one, got %d", first)
	}

	if _, err := repo.Next(ctx, "  "); err == nil {
		t.Fatalf("expected error for blank counter id")
	}
}
