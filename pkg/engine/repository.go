//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package engine is a process-local repository of process engine entities.
//
// It holds the rows that queries are filtered over and that gated commands
// mutate.  It has no execution semantics: instances advance only when a
// caller changes them.
package engine

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/manetu/authzengine/internal/logging"
	"github.com/manetu/authzengine/pkg/common"
	"github.com/mohae/deepcopy"
)

var logger = logging.GetLogger("authz.engine")

const agent = "repository"

// State is the full content of a repository.
type State struct {
	Deployments        map[string]*Deployment
	Definitions        map[string]*ProcessDefinition
	Instances          map[string]*ProcessInstance
	Executions         map[string]*Execution
	Tasks              map[string]*Task
	Jobs               map[string]*Job
	JobDefinitions     map[string]*JobDefinition
	Incidents          map[string]*Incident
	EventSubscriptions map[string]*EventSubscription
	Variables          map[string]*VariableInstance
	Batches            map[string]*Batch
	ActivityInstances  map[string]*ActivityInstance

	// Properties are the engine-wide system properties.
	Properties map[string]string
}

func newState() *State {
	return &State{
		Deployments:        make(map[string]*Deployment),
		Definitions:        make(map[string]*ProcessDefinition),
		Instances:          make(map[string]*ProcessInstance),
		Executions:         make(map[string]*Execution),
		Tasks:              make(map[string]*Task),
		Jobs:               make(map[string]*Job),
		JobDefinitions:     make(map[string]*JobDefinition),
		Incidents:          make(map[string]*Incident),
		EventSubscriptions: make(map[string]*EventSubscription),
		Variables:          make(map[string]*VariableInstance),
		Batches:            make(map[string]*Batch),
		ActivityInstances:  make(map[string]*ActivityInstance),
		Properties:         make(map[string]string),
	}
}

// Repository guards a State.  Reads return copies; writes go through
// [Repository.Update].
type Repository struct {
	mu    sync.RWMutex
	state *State
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{state: newState()}
}

// Update runs fn against a working copy of the state.  The copy replaces the
// state when fn succeeds and is discarded otherwise, so a failed update
// leaves no trace.  Updates are serialized.
func (r *Repository) Update(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	work := deepcopy.Copy(r.state).(*State)
	if err := fn(&Tx{s: work}); err != nil {
		logger.Debugf(agent, "update", "rolled back: %v", err)
		return err
	}
	r.state = work
	return nil
}

// View runs fn against a read-only copy of the state.
func (r *Repository) View(fn func(s *State)) {
	r.mu.RLock()
	snapshot := deepcopy.Copy(r.state).(*State)
	r.mu.RUnlock()
	fn(snapshot)
}

// Snapshot returns a copy of the state.
func (r *Repository) Snapshot() *State {
	var s *State
	r.View(func(v *State) { s = v })
	return s
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func notFound(kind, id string) error {
	return common.NewErrorf(common.KindNotFound, "%s with id '%s' does not exist", kind, id)
}

func values[T any](m map[string]*T, keep func(*T) bool) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if v := m[k]; keep == nil || keep(v) {
			out = append(out, *v)
		}
	}
	return out
}

// DefinitionList lists the process definitions ordered by id.
func (s *State) DefinitionList() []ProcessDefinition { return values(s.Definitions, nil) }

// InstanceList lists the process instances ordered by id.
func (s *State) InstanceList() []ProcessInstance { return values(s.Instances, nil) }

// ExecutionList lists the executions ordered by id.
func (s *State) ExecutionList() []Execution { return values(s.Executions, nil) }

// TaskList lists the tasks ordered by id.
func (s *State) TaskList() []Task { return values(s.Tasks, nil) }

// JobList lists the jobs ordered by id.
func (s *State) JobList() []Job { return values(s.Jobs, nil) }

// JobDefinitionList lists the job definitions ordered by id.
func (s *State) JobDefinitionList() []JobDefinition { return values(s.JobDefinitions, nil) }

// IncidentList lists the incidents ordered by id.
func (s *State) IncidentList() []Incident { return values(s.Incidents, nil) }

// EventSubscriptionList lists the event subscriptions ordered by id.
func (s *State) EventSubscriptionList() []EventSubscription { return values(s.EventSubscriptions, nil) }

// VariableList lists the variables ordered by id.
func (s *State) VariableList() []VariableInstance { return values(s.Variables, nil) }

// DeploymentList lists the deployments ordered by id.
func (s *State) DeploymentList() []Deployment { return values(s.Deployments, nil) }

// BatchList lists the batches ordered by id.
func (s *State) BatchList() []Batch { return values(s.Batches, nil) }

// ActivityInstanceList lists the activity instances ordered by id.
func (s *State) ActivityInstanceList() []ActivityInstance { return values(s.ActivityInstances, nil) }
