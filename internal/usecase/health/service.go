package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the aggregation cache is unavailable.
	Degraded Status = "degraded"
	// Unhealthy indicates the search engine is unavailable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	CheckSearch = "elasticsearch"
	CheckCache  = "cache"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	search Pinger
	cache  Pinger
}

// New creates a Service. cache can be nil.
func New(search, cache Pinger) *Service {
	return &Service{search: search, cache: cache}
}

// Check runs health checks against all components.
// Searches cannot run without the engine; the cache is optional.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks[CheckCache] = CheckError
			status = Degraded
		} else {
			checks[CheckCache] = CheckOK
		}
	}

	if err := s.search.Ping(ctx); err != nil {
		checks[CheckSearch] = CheckError
		status = Unhealthy
	} else {
		checks[CheckSearch] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
