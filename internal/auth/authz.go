package auth

import (
	"github.com/wolfeidau/orgmembers/internal/models"
)

// Action represents an operation a caller attempts against an organization.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// Actions lists every action the evaluator knows about.
var Actions = []Action{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage}

// Evaluate decides whether caller may perform action on org.
//
// Admins may do anything. Members may read. Create is always allowed because
// it applies to new organizations, not to org. Everything else is denied.
// Evaluate has no side effects and a nil org only allows Create.
func Evaluate(action Action, org *models.Organization, caller Identity) bool {
	if org != nil && org.IsAdmin(caller.ID) {
		return true
	}

	switch action {
	case ActionRead:
		return org != nil && org.IsMember(caller.ID)
	case ActionCreate:
		return true
	default:
		return false
	}
}
