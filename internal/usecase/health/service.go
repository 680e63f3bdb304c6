package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the search engine is unreachable.
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
	Meilisearch = "meilisearch"
	Database    = "database"
	Checkpoint  = "checkpoint"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	engine     Pinger
	db         Pinger
	checkpoint Pinger
}

// New creates a Service. db and checkpoint can be nil.
func New(engine, db, checkpoint Pinger) *Service {
	return &Service{engine: engine, db: db, checkpoint: checkpoint}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 3)
	checks[Meilisearch] = run(ctx, s.engine)
	if s.db != nil {
		checks[Database] = run(ctx, s.db)
	}
	if s.checkpoint != nil {
		checks[Checkpoint] = run(ctx, s.checkpoint)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[Meilisearch] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func run(ctx context.Context, p Pinger) CheckResult {
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
