//
//  Copyright © Manetu Inc. All rights reserved.
//

package resources

// Built-in resource types.
var (
	Application                    = Resource{ID: 0, Name: "Application"}
	User                           = Resource{ID: 1, Name: "User"}
	Group                          = Resource{ID: 2, Name: "Group"}
	GroupMembership                = Resource{ID: 3, Name: "GroupMembership"}
	Authorization                  = Resource{ID: 4, Name: "Authorization"}
	Filter                         = Resource{ID: 5, Name: "Filter"}
	ProcessDefinition              = Resource{ID: 6, Name: "ProcessDefinition"}
	Task                           = Resource{ID: 7, Name: "Task"}
	ProcessInstance                = Resource{ID: 8, Name: "ProcessInstance"}
	Deployment                     = Resource{ID: 9, Name: "Deployment"}
	DecisionDefinition             = Resource{ID: 10, Name: "DecisionDefinition"}
	Tenant                         = Resource{ID: 11, Name: "Tenant"}
	TenantMembership               = Resource{ID: 12, Name: "TenantMembership"}
	Batch                          = Resource{ID: 13, Name: "Batch"}
	DecisionRequirementsDefinition = Resource{ID: 14, Name: "DecisionRequirementsDefinition"}
	Report                         = Resource{ID: 15, Name: "Report"}
	Dashboard                      = Resource{ID: 16, Name: "Dashboard"}
	OperationLogCategory           = Resource{ID: 17, Name: "OperationLogCategory"}
	Optimize                       = Resource{ID: 18, Name: "Optimize"}
	HistoricTask                   = Resource{ID: 19, Name: "HistoricTask"}
	HistoricProcessInstance        = Resource{ID: 20, Name: "HistoricProcessInstance"}
	System                         = Resource{ID: 21, Name: "System"}
	Job                            = Resource{ID: 22, Name: "Job"}
	JobDefinition                  = Resource{ID: 23, Name: "JobDefinition"}
)

func perm(r Resource, name string, value int32) Permission {
	return Permission{Resource: r.ID, Name: name, Value: value}
}

// ProcessDefinitionPerms are the permissions of [ProcessDefinition].
var ProcessDefinitionPerms = struct {
	Read, Update, Delete, RetryJob, ReadTask, UpdateTask, CreateInstance, ReadInstance,
	UpdateInstance, DeleteInstance, ReadHistory, DeleteHistory, TaskWork, TaskAssign,
	MigrateInstance, SuspendInstance, UpdateInstanceVariable, UpdateTaskVariable, Suspend,
	ReadInstanceVariable, ReadHistoryVariable, ReadTaskVariable, UpdateHistory Permission
}{
	Read:                   perm(ProcessDefinition, "READ", 2),
	Update:                 perm(ProcessDefinition, "UPDATE", 4),
	Delete:                 perm(ProcessDefinition, "DELETE", 16),
	RetryJob:               perm(ProcessDefinition, "RETRY_JOB", 32),
	ReadTask:               perm(ProcessDefinition, "READ_TASK", 64),
	UpdateTask:             perm(ProcessDefinition, "UPDATE_TASK", 128),
	CreateInstance:         perm(ProcessDefinition, "CREATE_INSTANCE", 256),
	ReadInstance:           perm(ProcessDefinition, "READ_INSTANCE", 512),
	UpdateInstance:         perm(ProcessDefinition, "UPDATE_INSTANCE", 1024),
	DeleteInstance:         perm(ProcessDefinition, "DELETE_INSTANCE", 2048),
	ReadHistory:            perm(ProcessDefinition, "READ_HISTORY", 4096),
	DeleteHistory:          perm(ProcessDefinition, "DELETE_HISTORY", 8192),
	TaskWork:               perm(ProcessDefinition, "TASK_WORK", 16384),
	TaskAssign:             perm(ProcessDefinition, "TASK_ASSIGN", 32768),
	MigrateInstance:        perm(ProcessDefinition, "MIGRATE_INSTANCE", 65536),
	SuspendInstance:        perm(ProcessDefinition, "SUSPEND_INSTANCE", 131072),
	UpdateInstanceVariable: perm(ProcessDefinition, "UPDATE_INSTANCE_VARIABLE", 262144),
	UpdateTaskVariable:     perm(ProcessDefinition, "UPDATE_TASK_VARIABLE", 524288),
	Suspend:                perm(ProcessDefinition, "SUSPEND", 1048576),
	ReadInstanceVariable:   perm(ProcessDefinition, "READ_INSTANCE_VARIABLE", 2097152),
	ReadHistoryVariable:    perm(ProcessDefinition, "READ_HISTORY_VARIABLE", 4194304),
	ReadTaskVariable:       perm(ProcessDefinition, "READ_TASK_VARIABLE", 8388608),
	UpdateHistory:          perm(ProcessDefinition, "UPDATE_HISTORY", 16777216),
}

// ProcessInstancePerms are the permissions of [ProcessInstance].
var ProcessInstancePerms = struct {
	Read, Update, Create, Delete, RetryJob, Suspend, UpdateVariable Permission
}{
	Read:           perm(ProcessInstance, "READ", 2),
	Update:         perm(ProcessInstance, "UPDATE", 4),
	Create:         perm(ProcessInstance, "CREATE", 8),
	Delete:         perm(ProcessInstance, "DELETE", 16),
	RetryJob:       perm(ProcessInstance, "RETRY_JOB", 32),
	Suspend:        perm(ProcessInstance, "SUSPEND", 64),
	UpdateVariable: perm(ProcessInstance, "UPDATE_VARIABLE", 128),
}

// TaskPerms are the permissions of [Task].
var TaskPerms = struct {
	Read, Update, Create, Delete, UpdateVariable, ReadVariable, ReadHistory, TaskWork, TaskAssign Permission
}{
	Read:           perm(Task, "READ", 2),
	Update:         perm(Task, "UPDATE", 4),
	Create:         perm(Task, "CREATE", 8),
	Delete:         perm(Task, "DELETE", 16),
	UpdateVariable: perm(Task, "UPDATE_VARIABLE", 32),
	ReadVariable:   perm(Task, "READ_VARIABLE", 64),
	ReadHistory:    perm(Task, "READ_HISTORY", 4096),
	TaskWork:       perm(Task, "TASK_WORK", 16384),
	TaskAssign:     perm(Task, "TASK_ASSIGN", 32768),
}

// BatchPerms are the permissions of [Batch].
var BatchPerms = struct {
	Read, Update, Create, Delete, ReadHistory, DeleteHistory,
	CreateBatchMigrateProcessInstances, CreateBatchModifyProcessInstances,
	CreateBatchRestartProcessInstances, CreateBatchDeleteRunningProcessInstances,
	CreateBatchDeleteFinishedProcessInstances, CreateBatchDeleteDecisionInstances,
	CreateBatchSetJobRetries, CreateBatchSetRemovalTime, CreateBatchSetExternalTaskRetries,
	CreateBatchUpdateProcessInstancesSuspend, CreateBatchSetVariables Permission
}{
	Read:                                      perm(Batch, "READ", 2),
	Update:                                    perm(Batch, "UPDATE", 4),
	Create:                                    perm(Batch, "CREATE", 8),
	Delete:                                    perm(Batch, "DELETE", 16),
	ReadHistory:                               perm(Batch, "READ_HISTORY", 4096),
	DeleteHistory:                             perm(Batch, "DELETE_HISTORY", 8192),
	CreateBatchMigrateProcessInstances:        perm(Batch, "CREATE_BATCH_MIGRATE_PROCESS_INSTANCES", 32),
	CreateBatchModifyProcessInstances:         perm(Batch, "CREATE_BATCH_MODIFY_PROCESS_INSTANCES", 64),
	CreateBatchRestartProcessInstances:        perm(Batch, "CREATE_BATCH_RESTART_PROCESS_INSTANCES", 128),
	CreateBatchDeleteRunningProcessInstances:  perm(Batch, "CREATE_BATCH_DELETE_RUNNING_PROCESS_INSTANCES", 256),
	CreateBatchDeleteFinishedProcessInstances: perm(Batch, "CREATE_BATCH_DELETE_FINISHED_PROCESS_INSTANCES", 512),
	CreateBatchDeleteDecisionInstances:        perm(Batch, "CREATE_BATCH_DELETE_DECISION_INSTANCES", 1024),
	CreateBatchSetJobRetries:                  perm(Batch, "CREATE_BATCH_SET_JOB_RETRIES", 2048),
	CreateBatchSetRemovalTime:                 perm(Batch, "CREATE_BATCH_SET_REMOVAL_TIME", 16384),
	CreateBatchSetExternalTaskRetries:         perm(Batch, "CREATE_BATCH_SET_EXTERNAL_TASK_RETRIES", 32768),
	CreateBatchUpdateProcessInstancesSuspend:  perm(Batch, "CREATE_BATCH_UPDATE_PROCESS_INSTANCES_SUSPEND", 65536),
	CreateBatchSetVariables:                   perm(Batch, "CREATE_BATCH_SET_VARIABLES", 131072),
}

// SystemPerms are the permissions of [System].
var SystemPerms = struct{ Read, Set, Delete Permission }{
	Read:   perm(System, "READ", 2),
	Set:    perm(System, "SET", 4),
	Delete: perm(System, "DELETE", 16),
}

// HistoricTaskPerms are the permissions of [HistoricTask].
var HistoricTaskPerms = struct{ Read, ReadVariable Permission }{
	Read:         perm(HistoricTask, "READ", 2),
	ReadVariable: perm(HistoricTask, "READ_VARIABLE", 64),
}

// OptimizePerms are the permissions of [Optimize].
var OptimizePerms = struct{ Edit, Share Permission }{
	Edit:  perm(Optimize, "EDIT", 2),
	Share: perm(Optimize, "SHARE", 4),
}

// basic returns READ, UPDATE, CREATE and DELETE for r.
func basic(r Resource) []Permission {
	return []Permission{
		perm(r, "READ", 2),
		perm(r, "UPDATE", 4),
		perm(r, "CREATE", 8),
		perm(r, "DELETE", 16),
	}
}

// Default is the registry holding the built-in catalog.
var Default = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	reg := NewRegistry()

	pd := ProcessDefinitionPerms
	reg.MustRegister(ProcessDefinition, pd.Read, pd.Update, pd.Delete, pd.RetryJob, pd.ReadTask, pd.UpdateTask,
		pd.CreateInstance, pd.ReadInstance, pd.UpdateInstance, pd.DeleteInstance, pd.ReadHistory, pd.DeleteHistory,
		pd.TaskWork, pd.TaskAssign, pd.MigrateInstance, pd.SuspendInstance, pd.UpdateInstanceVariable,
		pd.UpdateTaskVariable, pd.Suspend, pd.ReadInstanceVariable, pd.ReadHistoryVariable, pd.ReadTaskVariable,
		pd.UpdateHistory)

	pi := ProcessInstancePerms
	reg.MustRegister(ProcessInstance, pi.Read, pi.Update, pi.Create, pi.Delete, pi.RetryJob, pi.Suspend, pi.UpdateVariable)

	t := TaskPerms
	reg.MustRegister(Task, t.Read, t.Update, t.Create, t.Delete, t.UpdateVariable, t.ReadVariable, t.ReadHistory,
		t.TaskWork, t.TaskAssign)

	b := BatchPerms
	reg.MustRegister(Batch, b.Read, b.Update, b.Create, b.Delete, b.ReadHistory, b.DeleteHistory,
		b.CreateBatchMigrateProcessInstances, b.CreateBatchModifyProcessInstances, b.CreateBatchRestartProcessInstances,
		b.CreateBatchDeleteRunningProcessInstances, b.CreateBatchDeleteFinishedProcessInstances,
		b.CreateBatchDeleteDecisionInstances, b.CreateBatchSetJobRetries, b.CreateBatchSetRemovalTime,
		b.CreateBatchSetExternalTaskRetries, b.CreateBatchUpdateProcessInstancesSuspend, b.CreateBatchSetVariables)

	reg.MustRegister(System, SystemPerms.Read, SystemPerms.Set, SystemPerms.Delete)
	reg.MustRegister(HistoricTask, HistoricTaskPerms.Read, HistoricTaskPerms.ReadVariable)
	reg.MustRegister(HistoricProcessInstance, perm(HistoricProcessInstance, "READ", 2))
	reg.MustRegister(Optimize, OptimizePerms.Edit, OptimizePerms.Share)
	reg.MustRegister(OperationLogCategory,
		perm(OperationLogCategory, "READ", 2), perm(OperationLogCategory, "UPDATE", 4), perm(OperationLogCategory, "DELETE", 16))
	reg.MustRegister(Application, perm(Application, "ACCESS", 32))

	for _, r := range []Resource{User, Group, GroupMembership, Authorization, Filter, Tenant, TenantMembership,
		DecisionRequirementsDefinition, Report, Dashboard, Job, JobDefinition} {
		reg.MustRegister(r, basic(r)...)
	}
	for _, r := range []Resource{Deployment, DecisionDefinition} {
		reg.MustRegister(r, append(basic(r), perm(r, "CREATE_INSTANCE", 256), perm(r, "READ_HISTORY", 4096))...)
	}

	return reg
}

// Lookup finds a permission in the [Default] registry.
func Lookup(r Resource, name string) (Permission, bool) {
	return Default.Lookup(r.ID, name)
}

// IsValid checks p against the [Default] registry.
func IsValid(r Resource, p Permission) bool {
	return Default.IsValid(r.ID, p)
}

// MustLookup is Lookup that panics when r does not declare name.  It is meant
// for package-level tables of well-known permissions.
func MustLookup(r Resource, name string) Permission {
	p, ok := Lookup(r, name)
	if !ok {
		panic("resources: " + r.Name + " has no permission " + name)
	}
	return p
}
