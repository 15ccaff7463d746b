//
//  Copyright © Manetu Inc. All rights reserved.
//

package engine

// ProcessDefinition is a deployed process model.  Authorization checks name
// definitions by Key, which is shared by every version.
type ProcessDefinition struct {
	ID           string
	Key          string
	Name         string
	Version      int
	DeploymentID string
	FormKey      string
	Suspended    bool
}

// ProcessInstance is a running instance of a definition.
type ProcessInstance struct {
	ID            string
	DefinitionID  string
	DefinitionKey string
	BusinessKey   string
	Suspended     bool
}

// Execution is a path of execution inside an instance.
type Execution struct {
	ID                string
	ProcessInstanceID string
	DefinitionKey     string
	ActivityID        string
}

// Comment is a note attached to a task.
type Comment struct {
	ID      string
	UserID  string
	Message string
}

// Task is a user task.  A task without a ProcessInstanceID is standalone.
type Task struct {
	ID                string
	Name              string
	ProcessInstanceID string
	DefinitionKey     string
	FormKey           string
	Assignee          string
	Owner             string
	CandidateUsers    []string
	CandidateGroups   []string
	Comments          []Comment
}

// Standalone reports whether t belongs to no process instance.
func (t Task) Standalone() bool {
	return t.ProcessInstanceID == ""
}

// Job is an asynchronous continuation, timer or batch job.  A job with no
// retries left has failed.
type Job struct {
	ID                string
	JobDefinitionID   string
	ProcessInstanceID string
	DefinitionID      string
	DefinitionKey     string
	ActivityID        string
	Retries           int
	ExceptionMessage  string
	Suspended         bool
}

// Failed reports whether j has exhausted its retries.
func (j Job) Failed() bool {
	return j.Retries <= 0
}

// JobDefinition describes the jobs created for one activity of a definition.
type JobDefinition struct {
	ID            string
	DefinitionID  string
	DefinitionKey string
	ActivityID    string
	JobType       string
	Suspended     bool
}

// Incident records a failure at an activity of an instance.
type Incident struct {
	ID                string
	Type              string
	ProcessInstanceID string
	DefinitionID      string
	DefinitionKey     string
	ActivityID        string
	Message           string
	Annotation        string
}

// EventSubscription is a message, signal or conditional subscription.
type EventSubscription struct {
	ID                string
	EventType         string
	EventName         string
	ProcessInstanceID string
	DefinitionKey     string
	ActivityID        string
}

// VariableInstance is a process variable when TaskID is empty and a task
// variable otherwise.
type VariableInstance struct {
	ID                string
	Name              string
	Value             any
	ProcessInstanceID string
	TaskID            string
	DefinitionKey     string
}

// Deployment groups definitions deployed together.
type Deployment struct {
	ID   string
	Name string
}

// Batch is an asynchronous bulk operation.
type Batch struct {
	ID        string
	Type      string
	TotalJobs int
	CreatedBy string
	Targets   []string
}

// ActivityInstance marks an instance waiting in or executing an activity.
type ActivityInstance struct {
	ID                string
	ProcessInstanceID string
	DefinitionID      string
	ActivityID        string
}
