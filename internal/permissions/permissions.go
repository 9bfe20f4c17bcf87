// Package permissions implements the role capability table. Roles are a
// tagged enumeration resolved per organization; every privileged operation
// names an Action and checks it against the fixed matrix below. Services
// never compare role strings directly.
package permissions

// Role is a caller's effective rank within an organization.
// Ordering: Owner outranks Admin outranks Member outranks Viewer.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Action is a privileged operation a role may or may not perform.
type Action string

const (
	ActionOrgManage    Action = "org:manage"
	ActionMemberManage Action = "member:manage"

	ActionProjectCreate Action = "project:create"
	ActionProjectEdit   Action = "project:edit"
	ActionProjectDelete Action = "project:delete"

	ActionSprintCreate Action = "sprint:create"
	ActionSprintEdit   Action = "sprint:edit"
	ActionSprintDelete Action = "sprint:delete"

	ActionStoryCreate  Action = "story:create"
	ActionStoryEdit    Action = "story:edit"
	ActionStoryDelete  Action = "story:delete"
	ActionStoryReorder Action = "story:reorder"
)

var capabilities = map[Role]map[Action]bool{
	RoleOwner: {
		ActionOrgManage:    true,
		ActionMemberManage: true,
		ActionProjectCreate: true, ActionProjectEdit: true, ActionProjectDelete: true,
		ActionSprintCreate: true, ActionSprintEdit: true, ActionSprintDelete: true,
		ActionStoryCreate: true, ActionStoryEdit: true, ActionStoryDelete: true,
		ActionStoryReorder: true,
	},
	RoleAdmin: {
		ActionMemberManage:  true,
		ActionProjectCreate: true, ActionProjectEdit: true, ActionProjectDelete: true,
		ActionSprintCreate: true, ActionSprintEdit: true, ActionSprintDelete: true,
		ActionStoryCreate: true, ActionStoryEdit: true, ActionStoryDelete: true,
		ActionStoryReorder: true,
	},
	RoleMember: {
		ActionSprintCreate: true, ActionSprintEdit: true,
		ActionStoryCreate: true, ActionStoryEdit: true,
		ActionStoryReorder: true,
	},
	RoleViewer: {},
}

// Can reports whether role may perform action. Unknown roles can do nothing.
func Can(role Role, action Action) bool {
	return capabilities[role][action]
}
