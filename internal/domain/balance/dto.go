package balance

// ChangeRoleRequest for PUT /admin/users/{id}/role
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,role"`
}

// AssignAgentRequest for PUT /admin/users/{id}/agent. AgentID accepts a
// uuid, or "", "none" and null to unassign.
type AssignAgentRequest struct {
	AgentID *string `json:"agentId"`
}

// defaultInitialCoins is the opening balance when the admin form omits one.
const defaultInitialCoins int64 = 1000

// CreateUserRequest for POST /admin/users. AgentID follows the same
// conventions as AssignAgentRequest.
type CreateUserRequest struct {
	Name         string  `json:"name" validate:"required,max=100"`
	Email        string  `json:"email" validate:"required,email"`
	Password     string  `json:"password" validate:"required,min=6"`
	Role         string  `json:"role" validate:"omitempty,role"`
	InitialCoins *int64  `json:"initialCoins" validate:"omitempty,min=0"`
	AgentID      *string `json:"agentId"`
}
