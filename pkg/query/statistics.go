//
//  Copyright © Manetu Inc. All rights reserved.
//

package query

import (
	"context"
	"sort"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/check"
	"github.com/manetu/authzengine/pkg/core/options"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/manetu/authzengine/pkg/engine"
)

// Counts are the instance, failed job and incident counts of a statistics
// row.  FailedJobs and Incidents stay zero unless requested.
type Counts struct {
	Instances  int
	FailedJobs int
	Incidents  int
}

func (c Counts) empty() bool {
	return c.Instances == 0 && c.FailedJobs == 0 && c.Incidents == 0
}

// ActivityStatistics are the counts of one activity of a definition.
type ActivityStatistics struct {
	ID string
	Counts
}

// ProcessDefinitionStatistics are the counts of one definition.
type ProcessDefinitionStatistics struct {
	Definition engine.ProcessDefinition
	Counts
}

// DeploymentStatistics are the counts of the definitions of a deployment.
type DeploymentStatistics struct {
	Deployment engine.Deployment
	Counts
}

type includes struct {
	failedJobs bool
	incidents  bool
}

// counter accumulates counts over the instances a session may see.
type counter struct {
	s        *session
	st       *engine.State
	includes includes
	visible  map[string]bool
}

func newCounter(s *session, st *engine.State, inc includes) *counter {
	return &counter{s: s, st: st, includes: inc, visible: make(map[string]bool)}
}

func (c *counter) eligible(instanceID string) (bool, error) {
	if ok, seen := c.visible[instanceID]; seen {
		return ok, nil
	}
	pi, ok := c.st.Instances[instanceID]
	if !ok {
		return false, nil
	}
	ok, err := c.s.allowed(instanceRules(pi.ID, pi.DefinitionKey)...)
	if err != nil {
		return false, err
	}
	c.visible[instanceID] = ok
	return ok, nil
}

// byInstance credits every visible instance, with its failed jobs and
// incidents, to the row key selects for its definition.
func (c *counter) byInstance(key func(definitionID string) string, rows map[string]*Counts) error {
	for _, pi := range c.st.InstanceList() {
		ok, err := c.eligible(pi.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		row := rows[key(pi.DefinitionID)]
		if row == nil {
			continue
		}
		row.Instances++
		if c.includes.failedJobs {
			for _, j := range c.st.Jobs {
				if j.ProcessInstanceID == pi.ID && j.Failed() {
					row.FailedJobs++
				}
			}
		}
		if c.includes.incidents {
			for _, i := range c.st.Incidents {
				if i.ProcessInstanceID == pi.ID {
					row.Incidents++
				}
			}
		}
	}
	return nil
}

// ActivityStatisticsQuery counts the instances waiting in each activity of
// one definition.  READ on the definition is required; without it the query
// fails with an authorization error.
type ActivityStatisticsQuery struct {
	base
	definitionID string
	includes     includes
}

func (s *Service) ActivityStatistics(auth types.Authentication, definitionID string, opts ...options.AuthzOptionsFunc) *ActivityStatisticsQuery {
	return &ActivityStatisticsQuery{base: s.base("activityStatistics", auth, opts), definitionID: definitionID}
}

func (q *ActivityStatisticsQuery) IncludeFailedJobs() *ActivityStatisticsQuery {
	q.includes.failedJobs = true
	return q
}

func (q *ActivityStatisticsQuery) IncludeIncidents() *ActivityStatisticsQuery {
	q.includes.incidents = true
	return q
}

func (q *ActivityStatisticsQuery) List(ctx context.Context) ([]ActivityStatistics, error) {
	s := q.open(ctx)
	st := q.svc.repo.Snapshot()

	pd, ok := st.Definitions[q.definitionID]
	if !ok {
		return nil, common.NewErrorf(common.KindNotFound, "process definition with id '%s' does not exist", q.definitionID)
	}
	if err := s.gate(check.AnyOf(check.On(resources.ProcessDefinitionPerms.Read, resources.ProcessDefinition, pd.Key))); err != nil {
		return nil, err
	}

	c := newCounter(s, st, q.includes)
	rows := map[string]*Counts{}
	row := func(activityID string) *Counts {
		r, ok := rows[activityID]
		if !ok {
			r = &Counts{}
			rows[activityID] = r
		}
		return r
	}

	for _, ai := range st.ActivityInstanceList() {
		if ai.DefinitionID != pd.ID {
			continue
		}
		ok, err := c.eligible(ai.ProcessInstanceID)
		if err != nil {
			return nil, err
		}
		if ok {
			row(ai.ActivityID).Instances++
		}
	}
	if q.includes.failedJobs {
		for _, j := range st.JobList() {
			if j.DefinitionID != pd.ID || !j.Failed() {
				continue
			}
			ok, err := c.eligible(j.ProcessInstanceID)
			if err != nil {
				return nil, err
			}
			if ok {
				row(j.ActivityID).FailedJobs++
			}
		}
	}
	if q.includes.incidents {
		for _, i := range st.IncidentList() {
			if i.DefinitionID != pd.ID {
				continue
			}
			ok, err := c.eligible(i.ProcessInstanceID)
			if err != nil {
				return nil, err
			}
			if ok {
				row(i.ActivityID).Incidents++
			}
		}
	}

	out := make([]ActivityStatistics, 0, len(rows))
	for id, r := range rows {
		if !r.empty() {
			out = append(out, ActivityStatistics{ID: id, Counts: *r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *ActivityStatisticsQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *ActivityStatisticsQuery) SingleResult(ctx context.Context) (*ActivityStatistics, error) {
	return single(q.List(ctx))
}

// ProcessDefinitionStatisticsQuery counts the instances of each definition
// the principal may read.
type ProcessDefinitionStatisticsQuery struct {
	base
	includes includes
}

func (s *Service) ProcessDefinitionStatistics(auth types.Authentication, opts ...options.AuthzOptionsFunc) *ProcessDefinitionStatisticsQuery {
	return &ProcessDefinitionStatisticsQuery{base: s.base("processDefinitionStatistics", auth, opts)}
}

func (q *ProcessDefinitionStatisticsQuery) IncludeFailedJobs() *ProcessDefinitionStatisticsQuery {
	q.includes.failedJobs = true
	return q
}

func (q *ProcessDefinitionStatisticsQuery) IncludeIncidents() *ProcessDefinitionStatisticsQuery {
	q.includes.incidents = true
	return q
}

func (q *ProcessDefinitionStatisticsQuery) List(ctx context.Context) ([]ProcessDefinitionStatistics, error) {
	s := q.open(ctx)
	st := q.svc.repo.Snapshot()

	definitions, err := filter(s, q.name, st.DefinitionList(), definitionRules)
	if err != nil {
		return nil, err
	}
	rows := make(map[string]*Counts, len(definitions))
	for _, pd := range definitions {
		rows[pd.ID] = &Counts{}
	}

	c := newCounter(s, st, q.includes)
	identity := func(id string) string { return id }
	if err := c.byInstance(identity, rows); err != nil {
		return nil, err
	}

	out := make([]ProcessDefinitionStatistics, 0, len(definitions))
	for _, pd := range definitions {
		out = append(out, ProcessDefinitionStatistics{Definition: pd, Counts: *rows[pd.ID]})
	}
	return out, nil
}

func (q *ProcessDefinitionStatisticsQuery) Count(ctx context.Context) (int, error) {
	return count(q.List(ctx))
}
func (q *ProcessDefinitionStatisticsQuery) SingleResult(ctx context.Context) (*ProcessDefinitionStatistics, error) {
	return single(q.List(ctx))
}

// DeploymentStatisticsQuery counts the instances of the definitions of each
// deployment the principal may read.
type DeploymentStatisticsQuery struct {
	base
	includes includes
}

func (s *Service) DeploymentStatistics(auth types.Authentication, opts ...options.AuthzOptionsFunc) *DeploymentStatisticsQuery {
	return &DeploymentStatisticsQuery{base: s.base("deploymentStatistics", auth, opts)}
}

func (q *DeploymentStatisticsQuery) IncludeFailedJobs() *DeploymentStatisticsQuery {
	q.includes.failedJobs = true
	return q
}

func (q *DeploymentStatisticsQuery) IncludeIncidents() *DeploymentStatisticsQuery {
	q.includes.incidents = true
	return q
}

func (q *DeploymentStatisticsQuery) List(ctx context.Context) ([]DeploymentStatistics, error) {
	s := q.open(ctx)
	st := q.svc.repo.Snapshot()

	deployments, err := filter(s, q.name, st.DeploymentList(), deploymentRules)
	if err != nil {
		return nil, err
	}
	rows := make(map[string]*Counts, len(deployments))
	for _, d := range deployments {
		rows[d.ID] = &Counts{}
	}

	c := newCounter(s, st, q.includes)
	deploymentOf := func(definitionID string) string {
		if pd, ok := st.Definitions[definitionID]; ok {
			return pd.DeploymentID
		}
		return ""
	}
	if err := c.byInstance(deploymentOf, rows); err != nil {
		return nil, err
	}

	out := make([]DeploymentStatistics, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, DeploymentStatistics{Deployment: d, Counts: *rows[d.ID]})
	}
	return out, nil
}

func (q *DeploymentStatisticsQuery) Count(ctx context.Context) (int, error) { return count(q.List(ctx)) }
func (q *DeploymentStatisticsQuery) SingleResult(ctx context.Context) (*DeploymentStatistics, error) {
	return single(q.List(ctx))
}
