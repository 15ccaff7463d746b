//
//  Copyright © Manetu Inc. All rights reserved.
//

package resources

import (
	"testing"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterConflicts(t *testing.T) {
	reg := NewRegistry()
	custom := Resource{ID: 100, Name: "Report"}
	require.NoError(t, reg.Register(custom, perm(custom, "READ", 2), perm(custom, "EXPORT", 4)))

	err := reg.Register(Resource{ID: 100, Name: "Other"})
	assert.ErrorIs(t, err, common.ErrBadConfiguration)

	err = reg.Register(custom, perm(custom, "EXPORT", 8))
	assert.ErrorIs(t, err, common.ErrBadConfiguration)

	// re-declaring with the same value is allowed
	require.NoError(t, reg.Register(custom, perm(custom, "EXPORT", 4)))
	assert.Equal(t, int32(6), reg.DeclaredBits(custom.ID))
}

func TestLookup(t *testing.T) {
	p, ok := Default.Lookup(Task.ID, "READ")
	require.True(t, ok)
	assert.Equal(t, TaskPerms.Read, p)

	p, ok = Default.Lookup(Task.ID, AllName)
	require.True(t, ok)
	assert.Equal(t, AllValue, p.Value)

	p, ok = Default.Lookup(Task.ID, NoneName)
	require.True(t, ok)
	assert.Zero(t, p.Value)

	_, ok = Default.Lookup(Task.ID, "CREATE_INSTANCE")
	assert.False(t, ok)

	assert.True(t, Default.IsValid(Task.ID, TaskPerms.Read))
	assert.False(t, Default.IsValid(Task.ID, ProcessDefinitionPerms.CreateInstance))
	assert.True(t, Default.KnownName("CREATE_INSTANCE"))
	assert.False(t, Default.KnownName("FLY"))
}

func TestResolve(t *testing.T) {
	r, p, err := Default.Resolve("ProcessDefinition", "CREATE_INSTANCE")
	require.NoError(t, err)
	assert.Equal(t, ProcessDefinition, r)
	assert.Equal(t, ProcessDefinitionPerms.CreateInstance, p)

	_, _, err = Default.Resolve("Nowhere", "READ")
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Contains(t, err.Error(), "unknown resource 'Nowhere'")

	_, _, err = Default.Resolve("Task", "CREATE_INSTANCE")
	assert.ErrorIs(t, err, common.ErrBadRequest)
	assert.Contains(t, err.Error(), "The resource type with id:'7' is not valid for 'CREATE_INSTANCE' permission.")
}

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "Task", Default.ResourceName(Task.ID))
	assert.Equal(t, "", Default.ResourceName(999))

	r, ok := Default.ResourceByName("JobDefinition")
	require.True(t, ok)
	assert.Equal(t, JobDefinition, r)
}
