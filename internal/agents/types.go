package agents

import (
	"context"

	"github.com/kingrea/layers/internal/roster"
	"github.com/kingrea/layers/internal/tmux"
)

// Sessions is the slice of the tmux controller the supervisor drives.
type Sessions interface {
	NewSession(ctx context.Context, name string, opts tmux.SessionOptions) error
	KillSession(ctx context.Context, name string) error
	HasSession(ctx context.Context, name string) bool
	SendKeys(ctx context.Context, target, keys string, enter bool) error
}

// WorkerStatus is a point-in-time view of one roster member. Running only
// reflects session presence.
type WorkerStatus struct {
	Name         string
	Role         roster.Role
	Running      bool
	Superior     string
	Subordinates []string
}

// WorkerHealth is one line of a HealthReport.
type WorkerHealth struct {
	Name    string
	Running bool
}

// HealthReport summarises liveness across the roster.
type HealthReport struct {
	Workers        []WorkerHealth
	UnhealthyCount int
	Healthy        bool
}

// NewHealthReport counts absent workers. Healthy holds exactly when none are
// absent.
func NewHealthReport(workers []WorkerHealth) HealthReport {
	report := HealthReport{Workers: workers}
	for _, w := range workers {
		if !w.Running {
			report.UnhealthyCount++
		}
	}
	report.Healthy = report.UnhealthyCount == 0
	return report
}

// Unhealthy lists the workers without a session, in roster order.
func (r HealthReport) Unhealthy() []string {
	var names []string
	for _, w := range r.Workers {
		if !w.Running {
			names = append(names, w.Name)
		}
	}
	return names
}

// RoleGroup collects statuses sharing a role.
type RoleGroup struct {
	Role     roster.Role
	Statuses []WorkerStatus
}

// GroupByRole buckets statuses by role in order of first appearance.
// Workers without a role share an empty-role group.
func GroupByRole(statuses []WorkerStatus) []RoleGroup {
	var groups []RoleGroup
	index := map[roster.Role]int{}
	for _, s := range statuses {
		i, ok := index[s.Role]
		if !ok {
			i = len(groups)
			index[s.Role] = i
			groups = append(groups, RoleGroup{Role: s.Role})
		}
		groups[i].Statuses = append(groups[i].Statuses, s)
	}
	return groups
}
