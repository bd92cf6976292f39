package core

import (
	"fmt"

	"github.com/pmbridge/pmbridge/pkg/models"
)

// capabilities is the table of tool names each role may invoke. Consulted
// once at the tool-invocation boundary instead of scattering role checks
// across call sites.
var capabilities = map[models.Role]map[string]bool{
	models.RoleEngineer: {
		"get_next_task":        true,
		"claim_task":           true,
		"submit_for_review":    true,
		"propose_modification": true,
		"propose_plan":         true,
		"list_tasks":           true,
		"get_recent_activity":  true,
	},
	models.RoleReviewer: {
		"get_next_task":        true,
		"claim_task":           true,
		"submit_for_review":    true,
		"propose_modification": true,
		"propose_plan":         true,
		"list_tasks":           true,
		"get_recent_activity":  true,
		"update_tasks":         true,
	},
}

// Authorize returns an error when the role may not invoke the named tool.
func Authorize(role models.Role, tool string) error {
	caps, ok := capabilities[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	if !caps[tool] {
		return fmt.Errorf("role %s may not call %s; switch to the reviewer role for direct task updates", role, tool)
	}
	return nil
}
