package core

import (
	"testing"

	"github.com/pmbridge/pmbridge/pkg/models"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		role    models.Role
		tool    string
		wantErr bool
	}{
		{models.RoleEngineer, "get_next_task", false},
		{models.RoleEngineer, "claim_task", false},
		{models.RoleEngineer, "submit_for_review", false},
		{models.RoleEngineer, "propose_modification", false},
		{models.RoleEngineer, "propose_plan", false},
		{models.RoleReviewer, "propose_plan", false},
		{models.RoleEngineer, "update_tasks", true},
		{models.RoleReviewer, "update_tasks", false},
		{models.RoleReviewer, "claim_task", false},
		{models.RoleEngineer, "unknown_tool", true},
		{models.Role("manager"), "claim_task", true},
	}

	for _, tt := range tests {
		err := Authorize(tt.role, tt.tool)
		if (err != nil) != tt.wantErr {
			t.Errorf("Authorize(%s, %s) error = %v, wantErr %v", tt.role, tt.tool, err, tt.wantErr)
		}
	}
}
