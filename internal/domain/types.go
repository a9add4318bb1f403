package domain

import "time"

// Pagination is the page request shared by every list operation. PageToken is opaque to callers.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is one page of results. An empty NextPageToken means the listing is exhausted.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// TimeRange is an inclusive window; a nil bound is open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (r TimeRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	return r.To == nil || !t.After(*r.To)
}

// Health statuses, from best to worst.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is the outcome of one dependency check.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// PlatformSettings holds the marketplace knobs an administrator can change at runtime.
type PlatformSettings struct {
	CommissionRate float64
	UpdatedBy      string
	UpdatedAt      time.Time
}

// SignedDownload is a time-limited link to an exported object.
type SignedDownload struct {
	Bucket    string
	Object    string
	URL       string
	ExpiresAt time.Time
}
