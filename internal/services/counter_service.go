package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boibabu/api/internal/repositories"
)

const (
	orderNumberPrefix = "BB-"
	// Six digits of sequence per calendar year.
	maxOrderSequence = 999_999
)

// ErrCounterExhausted is returned once a year's order sequence passes six digits.
var ErrCounterExhausted = errors.New("counter: exhausted")

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time
}

// NewCounterService constructs the order number issuer.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &counterService{repo: deps.Repository, clock: clock}, nil
}

// NextOrderNumber draws from the yearly counter orders:<yyyy>, so numbering restarts every January.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	year := s.clock().UTC().Year()
	seq, err := s.repo.Next(ctx, orderCounterID(year))
	if err != nil {
		return "", err
	}
	if seq > maxOrderSequence {
		return "", fmt.Errorf("%w: %d orders issued in %d", ErrCounterExhausted, seq-1, year)
	}
	return fmt.Sprintf("%s%04d-%06d", orderNumberPrefix, year, seq), nil
}

func orderCounterID(year int) string {
	return fmt.Sprintf("orders:%04d", year)
}
