package services

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	domain "github.com/boibabu/api/internal/domain"
	"github.com/boibabu/api/internal/repositories"
)

// BuildInfo is stamped onto every health report.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	checks repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
}

// NewSystemService backs the /readyz endpoint.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = now()
	}
	return &systemService{checks: deps.HealthRepository, now: now, build: build}, nil
}

// HealthReport runs the dependency checks. The overall status is the worst check status
// unless the repository already decided one.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.checks.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now().UTC()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	report.Version = lo.CoalesceOrEmpty(report.Version, s.build.Version)
	report.CommitSHA = lo.CoalesceOrEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = lo.CoalesceOrEmpty(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = worstStatus(lo.Values(report.Checks))
	}
	return report, nil
}

var healthSeverity = map[string]int{
	domain.HealthStatusOK:       0,
	"":                          0,
	domain.HealthStatusDegraded: 1,
	domain.HealthStatusError:    2,
}

func worstStatus(checks []domain.SystemHealthCheck) string {
	worst := domain.HealthStatusOK
	for _, check := range checks {
		severity, known := healthSeverity[check.Status]
		if !known {
			severity = 1
		}
		if severity > healthSeverity[worst] {
			worst = lo.Ternary(severity == 2, domain.HealthStatusError, domain.HealthStatusDegraded)
		}
	}
	return worst
}
