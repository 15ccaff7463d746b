//
//  Copyright © Manetu Inc. All rights reserved.
//

package check

import (
	"testing"

	"github.com/manetu/authzengine/pkg/common"
	"github.com/manetu/authzengine/pkg/core/model"
	"github.com/manetu/authzengine/pkg/core/resources"
	"github.com/manetu/authzengine/pkg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRevokeMode(t *testing.T) {
	m, err := ParseRevokeMode("always")
	require.NoError(t, err)
	assert.Equal(t, Always, m)

	m, err = ParseRevokeMode("")
	require.NoError(t, err)
	assert.Equal(t, Auto, m)

	_, err = ParseRevokeMode("sometimes")
	assert.ErrorIs(t, err, common.ErrBadConfiguration)
}

func TestDescriptorIsolation(t *testing.T) {
	groups := []string{"b", "a", "b", ""}
	d := NewDescriptor(types.Authentication{UserID: "demo", GroupIDs: groups},
		On(resources.TaskPerms.Read, resources.Task, "t1"), Always, true)

	groups[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, d.GroupIDs())

	ids := d.GroupIDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, d.GroupIDs())

	assert.Equal(t, []string{"t1", model.Any}, d.ResourceIDs())
	assert.False(t, d.IsAnyCheck())

	other := d.WithResourceID("")
	assert.True(t, other.IsAnyCheck())
	assert.Equal(t, "t1", d.ResourceID())
}

func TestNilGroups(t *testing.T) {
	d := NewDescriptor(types.Authentication{UserID: "demo"}, On(resources.TaskPerms.Read, resources.Task, ""), Auto, true)
	assert.NotNil(t, d.GroupIDs())
	assert.Empty(t, d.GroupIDs())

	m := d.Match(false)
	assert.Equal(t, []string{model.Any}, m.ResourceIDs)
	assert.Equal(t, resources.Task.ID, m.ResourceType)
}

func TestCompositeMissing(t *testing.T) {
	c := AnyOf(On(resources.ProcessInstancePerms.Update, resources.ProcessInstance, model.Any)).
		Or(On(resources.ProcessDefinitionPerms.UpdateInstance, resources.ProcessDefinition, "invoice"))

	err := common.NewAuthorizationError("demo", c.Missing()...)
	assert.Equal(t, "The user with id 'demo' does not have one of the following permissions: "+
		"'UPDATE' permission on resource 'ProcessInstance' or "+
		"'UPDATE_INSTANCE' permission on resource 'invoice' of type 'ProcessDefinition'", err.Error())
}
