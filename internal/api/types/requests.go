package types

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type OrgCreateRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type MemberAddRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	Role   string `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER VIEWER"`
}

type MemberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER VIEWER"`
}

type ProjectCreateRequest struct {
	Name        string                 `json:"name" validate:"required"`
	Description string                 `json:"description"`
	Settings    map[string]interface{} `json:"settings"`
}

type ProjectUpdateRequest struct {
	Description *string                `json:"description"`
	Settings    map[string]interface{} `json:"settings"`
}

type SprintRequest struct {
	Name     string `json:"name" validate:"required"`
	Goal     string `json:"goal"`
	StartsAt string `json:"starts_at" validate:"omitempty,datetime=2006-01-02"`
	EndsAt   string `json:"ends_at" validate:"omitempty,datetime=2006-01-02"`
}

type StoryCreateRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Status      string   `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	Position    float64  `json:"position"`
	SprintID    string   `json:"sprint_id" validate:"omitempty,uuid4"`
	AssigneeID  string   `json:"assignee_id" validate:"omitempty,uuid4"`
	Labels      []string `json:"labels"`
}

type StoryUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	SprintID    *string `json:"sprint_id" validate:"omitempty,uuid4"`
	AssigneeID  *string `json:"assignee_id" validate:"omitempty,uuid4"`
}

// ReorderRequest carries the complete desired arrangement of the affected
// stories: the caller includes every story whose status or position changed,
// including lanes that shifted because of an insertion.
type ReorderRequest struct {
	Items []ReorderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type ReorderItemRequest struct {
	StoryID  string  `json:"story_id" validate:"required,uuid4"`
	Status   string  `json:"status" validate:"required,oneof=TODO IN_PROGRESS DONE"`
	Position float64 `json:"position"`
}
