package auth

import (
	"fmt"

	"github.com/google/uuid"

	"go-inventory-ledger/internal/apperror"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) Valid() bool {
	_, ok := policy[r]
	return ok
}

type Action string

const (
	ActionProductView       Action = "product:view"
	ActionProductCreate     Action = "product:create"
	ActionProductUpdate     Action = "product:update"
	ActionProductDelete     Action = "product:delete"
	ActionCategoryView      Action = "category:view"
	ActionCategoryCreate    Action = "category:create"
	ActionCategoryUpdate    Action = "category:update"
	ActionCategoryDelete    Action = "category:delete"
	ActionTransactionView   Action = "transaction:view"
	ActionTransactionCreate Action = "transaction:create"
	ActionDashboardView     Action = "dashboard:view"
	ActionUserManage        Action = "user:manage"
)

// Principal is the authenticated actor behind a request
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil
}

var staffActions = []Action{
	ActionProductView,
	ActionProductCreate,
	ActionProductUpdate,
	ActionCategoryView,
	ActionTransactionView,
	ActionTransactionCreate,
	ActionDashboardView,
}

var adminActions = append([]Action{
	ActionProductDelete,
	ActionCategoryCreate,
	ActionCategoryUpdate,
	ActionCategoryDelete,
	ActionUserManage,
}, staffActions...)

var policy = map[Role]map[Action]struct{}{
	RoleAdmin: actionSet(adminActions),
	RoleStaff: actionSet(staffActions),
}

func actionSet(actions []Action) map[Action]struct{} {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Allowed reports whether role may perform action
func Allowed(role Role, action Action) bool {
	_, ok := policy[role][action]
	return ok
}

// Actions lists what a role may do, in policy order
func Actions(role Role) []Action {
	switch role {
	case RoleAdmin:
		return append([]Action(nil), adminActions...)
	case RoleStaff:
		return append([]Action(nil), staffActions...)
	}
	return nil
}

type Authorizer interface {
	Authorize(p Principal, action Action) error
}

// PolicyAuthorizer checks principals against the static role table
type PolicyAuthorizer struct{}

func (PolicyAuthorizer) Authorize(p Principal, action Action) error {
	if !p.Authenticated() {
		return apperror.Unauthorized(apperror.CodeInvalidCredentials, "authentication required")
	}
	if !Allowed(p.Role, action) {
		return apperror.Forbidden(fmt.Sprintf("role %q may not perform %s", p.Role, action))
	}
	return nil
}
