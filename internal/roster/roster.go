// Package roster holds the immutable set of worker configurations and the
// hierarchy edges between them. A Roster is validated once at construction:
// names are unique, exactly one root exists, every superior reference
// resolves, declared subordinate lists agree with the superior edges, and the
// edges form a tree. Startup stages are derived from depth below the root.
package roster

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role is a worker's position in the organisation.
type Role string

const (
	RoleProducer   Role = "producer"
	RoleDirector   Role = "director"
	RoleLeadDesign Role = "lead_design"
	RoleLeadProg   Role = "lead_prog"
	RoleLeadQA     Role = "lead_qa"
	RoleDesigner   Role = "designer"
	RoleProgrammer Role = "programmer"
	RoleTester     Role = "tester"
)

var knownRoles = map[Role]struct{}{
	RoleProducer: {}, RoleDirector: {}, RoleLeadDesign: {}, RoleLeadProg: {},
	RoleLeadQA: {}, RoleDesigner: {}, RoleProgrammer: {}, RoleTester: {},
}

// PermissionMode controls the permission flag passed to the worker CLI.
type PermissionMode string

const (
	PermissionDefault         PermissionMode = "default"
	PermissionAcceptEdits     PermissionMode = "acceptEdits"
	PermissionDangerouslySkip PermissionMode = "dangerouslySkip"
)

// WorkerConfig is one roster entry. Superior is empty for the root.
type WorkerConfig struct {
	Name           string         `json:"name"`
	Role           Role           `json:"role"`
	Superior       string         `json:"superior"`
	Subordinates   []string       `json:"subordinates"`
	PromptFile     string         `json:"promptFile"`
	EntryCommand   string         `json:"entryCommand,omitempty"`
	PermissionMode PermissionMode `json:"permissionMode,omitempty"`
}

// UnmarshalJSON accepts the legacy "sessionName" key as an alias for name.
func (w *WorkerConfig) UnmarshalJSON(data []byte) error {
	type plain WorkerConfig
	var aux struct {
		plain
		SessionName string `json:"sessionName"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*w = WorkerConfig(aux.plain)
	if w.Name == "" {
		w.Name = aux.SessionName
	}
	return nil
}

func (w WorkerConfig) clone() WorkerConfig {
	w.Subordinates = append([]string(nil), w.Subordinates...)
	return w
}

// Roster is the validated, read-only worker hierarchy. It is safe for
// concurrent readers because nothing mutates it after New returns.
type Roster struct {
	workers []WorkerConfig
	index   map[string]int
	root    string
	stages  [][]string
	depth   map[string]int
}

// New validates workers and builds a Roster. Declared subordinate lists must
// match the superior edges; an omitted list is derived from them.
func New(workers []WorkerConfig) (*Roster, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	r := &Roster{
		workers: make([]WorkerConfig, 0, len(workers)),
		index:   make(map[string]int, len(workers)),
	}
	for i, w := range workers {
		w = normalize(w)
		if w.Name == "" {
			return nil, fmt.Errorf("agents[%d]: name is required", i)
		}
		if _, dup := r.index[w.Name]; dup {
			return nil, fmt.Errorf("agents[%d]: duplicate name %q", i, w.Name)
		}
		if w.Role != "" {
			if _, ok := knownRoles[w.Role]; !ok {
				return nil, fmt.Errorf("agent %s: unknown role %q", w.Name, w.Role)
			}
		}
		switch w.PermissionMode {
		case "", PermissionDefault, PermissionAcceptEdits, PermissionDangerouslySkip:
		default:
			return nil, fmt.Errorf("agent %s: unknown permission mode %q", w.Name, w.PermissionMode)
		}
		r.index[w.Name] = len(r.workers)
		r.workers = append(r.workers, w)
	}
	if err := r.linkEdges(); err != nil {
		return nil, err
	}
	if err := r.computeStages(); err != nil {
		return nil, err
	}
	return r, nil
}

func normalize(w WorkerConfig) WorkerConfig {
	w = w.clone()
	w.Name = strings.TrimSpace(w.Name)
	w.Superior = strings.TrimSpace(w.Superior)
	w.Role = Role(strings.TrimSpace(string(w.Role)))
	w.PromptFile = strings.TrimSpace(w.PromptFile)
	w.EntryCommand = strings.TrimSpace(w.EntryCommand)
	for i := range w.Subordinates {
		w.Subordinates[i] = strings.TrimSpace(w.Subordinates[i])
	}
	return w
}

func (r *Roster) linkEdges() error {
	children := make(map[string][]string, len(r.workers))
	for _, w := range r.workers {
		if w.Superior == "" {
			if r.root != "" {
				return fmt.Errorf("multiple roots: %s and %s", r.root, w.Name)
			}
			r.root = w.Name
			continue
		}
		if w.Superior == w.Name {
			return fmt.Errorf("agent %s: superior refers to itself", w.Name)
		}
		if _, ok := r.index[w.Superior]; !ok {
			return fmt.Errorf("agent %s: superior %q is not in the roster", w.Name, w.Superior)
		}
		children[w.Superior] = append(children[w.Superior], w.Name)
	}
	if r.root == "" {
		return fmt.Errorf("no root agent (exactly one agent must have no superior)")
	}
	for i := range r.workers {
		w := &r.workers[i]
		derived := children[w.Name]
		if len(w.Subordinates) == 0 {
			w.Subordinates = append([]string(nil), derived...)
			continue
		}
		if err := sameMembers(w.Subordinates, derived); err != nil {
			return fmt.Errorf("agent %s: subordinates %w", w.Name, err)
		}
	}
	return nil
}

func sameMembers(declared, derived []string) error {
	want := make(map[string]struct{}, len(derived))
	for _, name := range derived {
		want[name] = struct{}{}
	}
	seen := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("list %q twice", name)
		}
		seen[name] = struct{}{}
		if _, ok := want[name]; !ok {
			return fmt.Errorf("list %q, which does not report to this agent", name)
		}
	}
	var missing []string
	for name := range want {
		if _, ok := seen[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("omit %s, which report to this agent", strings.Join(missing, ", "))
	}
	return nil
}

// computeStages walks the tree breadth-first from the root. Any worker the
// walk cannot reach sits on a superior cycle.
func (r *Roster) computeStages() error {
	r.depth = map[string]int{r.root: 0}
	queue := []string{r.root}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, child := range r.workers[r.index[name]].Subordinates {
			if _, visited := r.depth[child]; visited {
				return fmt.Errorf("cycle detected at %s", child)
			}
			r.depth[child] = r.depth[name] + 1
			queue = append(queue, child)
		}
	}
	var unreachable []string
	for _, w := range r.workers {
		if _, ok := r.depth[w.Name]; !ok {
			unreachable = append(unreachable, w.Name)
		}
	}
	if len(unreachable) > 0 {
		return fmt.Errorf("cycle detected among %s", strings.Join(unreachable, ", "))
	}
	maxDepth := 0
	for _, d := range r.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	r.stages = make([][]string, maxDepth+1)
	for _, w := range r.workers {
		d := r.depth[w.Name]
		r.stages[d] = append(r.stages[d], w.Name)
	}
	return nil
}

// Len returns the number of workers.
func (r *Roster) Len() int { return len(r.workers) }

// Root returns the name of the worker without a superior.
func (r *Roster) Root() string { return r.root }

// Lookup returns the configuration for name.
func (r *Roster) Lookup(name string) (WorkerConfig, bool) {
	i, ok := r.index[name]
	if !ok {
		return WorkerConfig{}, false
	}
	return r.workers[i].clone(), true
}

// Workers returns every configuration in declaration order.
func (r *Roster) Workers() []WorkerConfig {
	out := make([]WorkerConfig, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.clone()
	}
	return out
}

// Names returns every worker name in declaration order.
func (r *Roster) Names() []string {
	out := make([]string, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.Name
	}
	return out
}

// Depth returns the distance of name from the root.
func (r *Roster) Depth(name string) (int, bool) {
	d, ok := r.depth[name]
	return d, ok
}

// Stages groups workers by depth: the root, then its direct reports, and so
// on down to the leaves. Members of a stage keep declaration order.
func (r *Roster) Stages() [][]string {
	out := make([][]string, len(r.stages))
	for i, stage := range r.stages {
		out[i] = append([]string(nil), stage...)
	}
	return out
}
