//
//  Copyright © Manetu Inc. All rights reserved.
//

package engine

import (
	"github.com/manetu/authzengine/pkg/common"
)

// Tx is the working copy handed to [Repository.Update].  Lookups return
// pointers into the copy, so changes made through them are committed with
// the update.
type Tx struct {
	s *State
}

// State exposes the working copy.
func (tx *Tx) State() *State { return tx.s }

func (tx *Tx) AddDeployment(d Deployment) Deployment {
	d.ID = newID(d.ID)
	tx.s.Deployments[d.ID] = &d
	return d
}

// AddDefinition stores pd.  Its key is required.
func (tx *Tx) AddDefinition(pd ProcessDefinition) (ProcessDefinition, error) {
	if pd.Key == "" {
		return pd, common.NewError(common.KindInvalidArgument, "process definition key is required")
	}
	pd.ID = newID(pd.ID)
	if pd.Version == 0 {
		pd.Version = 1
	}
	tx.s.Definitions[pd.ID] = &pd
	return pd, nil
}

// StartInstance creates an instance of the definition with its root
// execution.
func (tx *Tx) StartInstance(definitionID, businessKey string) (ProcessInstance, error) {
	return tx.AddInstance(ProcessInstance{DefinitionID: definitionID, BusinessKey: businessKey})
}

// AddInstance is StartInstance keeping the id of pi when it has one.
func (tx *Tx) AddInstance(pi ProcessInstance) (ProcessInstance, error) {
	pd, err := tx.Definition(pi.DefinitionID)
	if err != nil {
		return ProcessInstance{}, err
	}
	if pd.Suspended {
		return ProcessInstance{}, common.NewErrorf(common.KindBadRequest,
			"Cannot start process instance. Process definition %s is suspended", pd.ID)
	}

	pi.ID = newID(pi.ID)
	pi.DefinitionKey = pd.Key
	pi.Suspended = false
	tx.s.Instances[pi.ID] = &pi
	tx.AddExecution(Execution{ID: pi.ID, ProcessInstanceID: pi.ID, DefinitionKey: pd.Key})
	return pi, nil
}

func (tx *Tx) AddExecution(e Execution) Execution {
	e.ID = newID(e.ID)
	tx.s.Executions[e.ID] = &e
	return e
}

// AddActivityInstance places instanceID at activityID.
func (tx *Tx) AddActivityInstance(instanceID, activityID string) (ActivityInstance, error) {
	pi, err := tx.Instance(instanceID)
	if err != nil {
		return ActivityInstance{}, err
	}
	ai := ActivityInstance{ID: newID(""), ProcessInstanceID: pi.ID, DefinitionID: pi.DefinitionID, ActivityID: activityID}
	tx.s.ActivityInstances[ai.ID] = &ai
	return ai, nil
}

// AddTask stores t, completing its definition key from its instance.
func (tx *Tx) AddTask(t Task) (Task, error) {
	if t.ProcessInstanceID != "" {
		pi, err := tx.Instance(t.ProcessInstanceID)
		if err != nil {
			return t, err
		}
		t.DefinitionKey = pi.DefinitionKey
	}
	t.ID = newID(t.ID)
	tx.s.Tasks[t.ID] = &t
	return t, nil
}

func (tx *Tx) AddJobDefinition(jd JobDefinition) (JobDefinition, error) {
	pd, err := tx.Definition(jd.DefinitionID)
	if err != nil {
		return jd, err
	}
	jd.ID = newID(jd.ID)
	jd.DefinitionKey = pd.Key
	tx.s.JobDefinitions[jd.ID] = &jd
	return jd, nil
}

// AddJob stores j, completing its definition from its instance or job
// definition.
func (tx *Tx) AddJob(j Job) (Job, error) {
	if j.ProcessInstanceID != "" {
		pi, err := tx.Instance(j.ProcessInstanceID)
		if err != nil {
			return j, err
		}
		j.DefinitionID, j.DefinitionKey = pi.DefinitionID, pi.DefinitionKey
	}
	if j.JobDefinitionID != "" {
		jd, err := tx.JobDefinition(j.JobDefinitionID)
		if err != nil {
			return j, err
		}
		j.DefinitionID, j.DefinitionKey = jd.DefinitionID, jd.DefinitionKey
		if j.ActivityID == "" {
			j.ActivityID = jd.ActivityID
		}
		j.Suspended = j.Suspended || jd.Suspended
	}
	j.ID = newID(j.ID)
	tx.s.Jobs[j.ID] = &j
	return j, nil
}

func (tx *Tx) AddIncident(i Incident) (Incident, error) {
	pi, err := tx.Instance(i.ProcessInstanceID)
	if err != nil {
		return i, err
	}
	i.ID = newID(i.ID)
	i.DefinitionID, i.DefinitionKey = pi.DefinitionID, pi.DefinitionKey
	tx.s.Incidents[i.ID] = &i
	return i, nil
}

func (tx *Tx) AddEventSubscription(e EventSubscription) (EventSubscription, error) {
	if e.ProcessInstanceID != "" {
		pi, err := tx.Instance(e.ProcessInstanceID)
		if err != nil {
			return e, err
		}
		e.DefinitionKey = pi.DefinitionKey
	}
	e.ID = newID(e.ID)
	tx.s.EventSubscriptions[e.ID] = &e
	return e, nil
}

func (tx *Tx) AddBatch(b Batch) Batch {
	b.ID = newID(b.ID)
	if b.TotalJobs == 0 {
		b.TotalJobs = len(b.Targets)
	}
	tx.s.Batches[b.ID] = &b
	return b
}

// SetVariable creates or replaces the variable name of an instance (taskID
// empty) or of a task.
func (tx *Tx) SetVariable(instanceID, taskID, name string, value any) (VariableInstance, error) {
	key := ""
	if taskID != "" {
		t, err := tx.Task(taskID)
		if err != nil {
			return VariableInstance{}, err
		}
		instanceID, key = t.ProcessInstanceID, t.DefinitionKey
	} else {
		pi, err := tx.Instance(instanceID)
		if err != nil {
			return VariableInstance{}, err
		}
		key = pi.DefinitionKey
	}

	for _, v := range tx.s.Variables {
		if v.Name == name && v.TaskID == taskID && v.ProcessInstanceID == instanceID {
			v.Value = value
			return *v, nil
		}
	}
	v := VariableInstance{ID: newID(""), Name: name, Value: value, ProcessInstanceID: instanceID, TaskID: taskID, DefinitionKey: key}
	tx.s.Variables[v.ID] = &v
	return v, nil
}

// RemoveVariable deletes the variable name of an instance or task.  Removing
// an absent variable is a no-op.
func (tx *Tx) RemoveVariable(instanceID, taskID, name string) {
	for id, v := range tx.s.Variables {
		if v.Name == name && v.TaskID == taskID && (taskID != "" || v.ProcessInstanceID == instanceID) {
			delete(tx.s.Variables, id)
		}
	}
}

func (tx *Tx) Definition(id string) (*ProcessDefinition, error) {
	if pd, ok := tx.s.Definitions[id]; ok {
		return pd, nil
	}
	return nil, notFound("process definition", id)
}

// DefinitionsByKey returns every version of the definition key.
func (tx *Tx) DefinitionsByKey(key string) []*ProcessDefinition {
	var out []*ProcessDefinition
	for _, pd := range tx.s.Definitions {
		if pd.Key == key {
			out = append(out, pd)
		}
	}
	return out
}

func (tx *Tx) Instance(id string) (*ProcessInstance, error) {
	if pi, ok := tx.s.Instances[id]; ok {
		return pi, nil
	}
	return nil, notFound("process instance", id)
}

func (tx *Tx) Task(id string) (*Task, error) {
	if t, ok := tx.s.Tasks[id]; ok {
		return t, nil
	}
	return nil, notFound("task", id)
}

func (tx *Tx) Job(id string) (*Job, error) {
	if j, ok := tx.s.Jobs[id]; ok {
		return j, nil
	}
	return nil, notFound("job", id)
}

func (tx *Tx) JobDefinition(id string) (*JobDefinition, error) {
	if jd, ok := tx.s.JobDefinitions[id]; ok {
		return jd, nil
	}
	return nil, notFound("job definition", id)
}

func (tx *Tx) Incident(id string) (*Incident, error) {
	if i, ok := tx.s.Incidents[id]; ok {
		return i, nil
	}
	return nil, notFound("incident", id)
}

// InstancesWhere returns the instances matching keep.
func (tx *Tx) InstancesWhere(keep func(*ProcessInstance) bool) []*ProcessInstance {
	return where(tx.s.Instances, keep)
}

// JobsWhere returns the jobs matching keep.
func (tx *Tx) JobsWhere(keep func(*Job) bool) []*Job {
	return where(tx.s.Jobs, keep)
}

// JobDefinitionsWhere returns the job definitions matching keep.
func (tx *Tx) JobDefinitionsWhere(keep func(*JobDefinition) bool) []*JobDefinition {
	return where(tx.s.JobDefinitions, keep)
}

func where[T any](m map[string]*T, keep func(*T) bool) []*T {
	var out []*T
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// DeleteTask removes a task and its variables.
func (tx *Tx) DeleteTask(id string) error {
	if _, err := tx.Task(id); err != nil {
		return err
	}
	delete(tx.s.Tasks, id)
	for vid, v := range tx.s.Variables {
		if v.TaskID == id {
			delete(tx.s.Variables, vid)
		}
	}
	return nil
}

// DeleteInstance removes an instance and everything that belongs to it.
func (tx *Tx) DeleteInstance(id string) error {
	if _, err := tx.Instance(id); err != nil {
		return err
	}
	delete(tx.s.Instances, id)
	deleteWhere(tx.s.Executions, func(e *Execution) bool { return e.ProcessInstanceID == id })
	deleteWhere(tx.s.Tasks, func(t *Task) bool { return t.ProcessInstanceID == id })
	deleteWhere(tx.s.Jobs, func(j *Job) bool { return j.ProcessInstanceID == id })
	deleteWhere(tx.s.Incidents, func(i *Incident) bool { return i.ProcessInstanceID == id })
	deleteWhere(tx.s.EventSubscriptions, func(e *EventSubscription) bool { return e.ProcessInstanceID == id })
	deleteWhere(tx.s.Variables, func(v *VariableInstance) bool { return v.ProcessInstanceID == id })
	deleteWhere(tx.s.ActivityInstances, func(a *ActivityInstance) bool { return a.ProcessInstanceID == id })
	return nil
}

// DeleteDefinition removes a definition without instances, together with
// its job definitions.
func (tx *Tx) DeleteDefinition(id string) error {
	if _, err := tx.Definition(id); err != nil {
		return err
	}
	if n := len(tx.InstancesWhere(func(pi *ProcessInstance) bool { return pi.DefinitionID == id })); n > 0 {
		return common.NewErrorf(common.KindBadRequest,
			"Deletion of process definition without cascading failed. Process definition with id: %s can't be deleted, "+
				"since there exists %d dependening process instance(s).", id, n)
	}
	delete(tx.s.Definitions, id)
	deleteWhere(tx.s.JobDefinitions, func(jd *JobDefinition) bool { return jd.DefinitionID == id })
	deleteWhere(tx.s.Jobs, func(j *Job) bool { return j.DefinitionID == id })
	return nil
}

func deleteWhere[T any](m map[string]*T, drop func(*T) bool) {
	for k, v := range m {
		if drop(v) {
			delete(m, k)
		}
	}
}
