//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package bundle loads authorization bundles: YAML documents that seed the
// authorization store, group and tenant memberships and, optionally, engine
// entities for tests and demos.
//
// A bundle looks like:
//
//	apiVersion: authz.manetu.io/v1
//	kind: AuthorizationBundle
//	metadata:
//	  name: demo
//	spec:
//	  groups:
//	    - id: accounting
//	      members: [demo, mary]
//	  authorizations:
//	    - type: GRANT
//	      resource: ProcessDefinition
//	      resourceId: invoice
//	      groupId: accounting
//	      permissions: [READ, CREATE_INSTANCE]
//
// Several bundles may be loaded together with [Load].  Earlier paths take
// precedence when two bundles define the same entity.
package bundle

// Kind is the only document kind accepted.
const Kind = "AuthorizationBundle"

// APIVersionV1 is the current schema.
const APIVersionV1 = "authz.manetu.io/v1"

// Preamble is the header common to every bundle version.
type Preamble struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// Bundle is a parsed bundle document.
type Bundle struct {
	Preamble `yaml:",inline"`
	Metadata Metadata `yaml:"metadata"`
	Spec     Spec     `yaml:"spec"`
}

type Metadata struct {
	Name string `yaml:"name" validate:"required"`
}

type Spec struct {
	Groups         []Group         `yaml:"groups" validate:"dive"`
	Tenants        []Tenant        `yaml:"tenants" validate:"dive"`
	Authorizations []Authorization `yaml:"authorizations" validate:"dive"`
	Engine         Engine          `yaml:"engine"`
}

// Group lists the members of a group.
type Group struct {
	ID      string   `yaml:"id" validate:"required,ne=*"`
	Members []string `yaml:"members" validate:"dive,required,ne=*"`
}

// Tenant lists the users and groups of a tenant.
type Tenant struct {
	ID     string   `yaml:"id" validate:"required,ne=*"`
	Users  []string `yaml:"users" validate:"dive,required"`
	Groups []string `yaml:"groups" validate:"dive,required"`
}

// Authorization is a record in the bundle's textual form, also used on the
// wire by the decision point.  A missing resourceId means every resource of
// the type.
type Authorization struct {
	ID          string   `yaml:"id" json:"id,omitempty"`
	Type        string   `yaml:"type" json:"type" validate:"required,oneof=GLOBAL GRANT REVOKE"`
	Resource    string   `yaml:"resource" json:"resource" validate:"required"`
	ResourceID  string   `yaml:"resourceId" json:"resourceId,omitempty"`
	UserID      string   `yaml:"userId" json:"userId,omitempty"`
	GroupID     string   `yaml:"groupId" json:"groupId,omitempty"`
	Permissions []string `yaml:"permissions" json:"permissions" validate:"dive,required"`
}

// Engine seeds the engine repository.
type Engine struct {
	Deployments    []Deployment      `yaml:"deployments" validate:"dive"`
	Definitions    []Definition      `yaml:"definitions" validate:"dive"`
	Instances      []Instance        `yaml:"instances" validate:"dive"`
	Tasks          []Task            `yaml:"tasks" validate:"dive"`
	JobDefinitions []JobDefinition   `yaml:"jobDefinitions" validate:"dive"`
	Jobs           []Job             `yaml:"jobs" validate:"dive"`
	Incidents      []Incident        `yaml:"incidents" validate:"dive"`
	Variables      []Variable        `yaml:"variables" validate:"dive"`
	Properties     map[string]string `yaml:"properties"`
}

func (e Engine) empty() bool {
	return len(e.Deployments)+len(e.Definitions)+len(e.Instances)+len(e.Tasks)+len(e.JobDefinitions)+
		len(e.Jobs)+len(e.Incidents)+len(e.Variables)+len(e.Properties) == 0
}

type Deployment struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name"`
}

type Definition struct {
	ID           string `yaml:"id" validate:"required"`
	Key          string `yaml:"key" validate:"required"`
	Name         string `yaml:"name"`
	Version      int    `yaml:"version" validate:"gte=0"`
	DeploymentID string `yaml:"deploymentId"`
	FormKey      string `yaml:"formKey"`
	Suspended    bool   `yaml:"suspended"`
}

type Instance struct {
	ID           string   `yaml:"id" validate:"required"`
	DefinitionID string   `yaml:"definitionId" validate:"required"`
	BusinessKey  string   `yaml:"businessKey"`
	Activities   []string `yaml:"activities" validate:"dive,required"`
	Suspended    bool     `yaml:"suspended"`
}

type Task struct {
	ID                string   `yaml:"id" validate:"required"`
	Name              string   `yaml:"name"`
	ProcessInstanceID string   `yaml:"processInstanceId"`
	FormKey           string   `yaml:"formKey"`
	Assignee          string   `yaml:"assignee"`
	Owner             string   `yaml:"owner"`
	CandidateUsers    []string `yaml:"candidateUsers" validate:"dive,required"`
	CandidateGroups   []string `yaml:"candidateGroups" validate:"dive,required"`
}

type JobDefinition struct {
	ID           string `yaml:"id" validate:"required"`
	DefinitionID string `yaml:"definitionId" validate:"required"`
	ActivityID   string `yaml:"activityId"`
	JobType      string `yaml:"jobType"`
	Suspended    bool   `yaml:"suspended"`
}

type Job struct {
	ID                string `yaml:"id" validate:"required"`
	JobDefinitionID   string `yaml:"jobDefinitionId"`
	ProcessInstanceID string `yaml:"processInstanceId"`
	ActivityID        string `yaml:"activityId"`
	Retries           int    `yaml:"retries" validate:"gte=0"`
	ExceptionMessage  string `yaml:"exceptionMessage"`
}

type Incident struct {
	ID                string `yaml:"id" validate:"required"`
	Type              string `yaml:"type"`
	ProcessInstanceID string `yaml:"processInstanceId" validate:"required"`
	ActivityID        string `yaml:"activityId"`
	Message           string `yaml:"message"`
}

// Variable is a process variable, or a task variable when TaskID is set.
type Variable struct {
	Name              string `yaml:"name" validate:"required"`
	Value             any    `yaml:"value"`
	ProcessInstanceID string `yaml:"processInstanceId"`
	TaskID            string `yaml:"taskId"`
}
