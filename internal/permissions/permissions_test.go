package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilityTable(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleOwner, ActionOrgManage, true},
		{RoleOwner, ActionStoryReorder, true},
		{RoleAdmin, ActionOrgManage, false},
		{RoleAdmin, ActionMemberManage, true},
		{RoleAdmin, ActionProjectDelete, true},
		{RoleMember, ActionStoryCreate, true},
		{RoleMember, ActionStoryReorder, true},
		{RoleMember, ActionStoryDelete, false},
		{RoleMember, ActionProjectCreate, false},
		{RoleViewer, ActionStoryCreate, false},
		{RoleViewer, ActionStoryReorder, false},
		{Role("INTRUDER"), ActionStoryEdit, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Can(tc.role, tc.action), "%s / %s", tc.role, tc.action)
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleOwner.Valid())
	assert.True(t, RoleViewer.Valid())
	assert.False(t, Role("").Valid())
	assert.False(t, Role("admin").Valid())
}
