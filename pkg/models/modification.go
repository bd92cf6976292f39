package models

// ModificationKind discriminates the TaskModification variants.
type ModificationKind string

const (
	ModAdd    ModificationKind = "add"
	ModDelete ModificationKind = "delete"
	ModModify ModificationKind = "modify"
	ModBlock  ModificationKind = "block"
	ModSplit  ModificationKind = "split"
	// ModMerge is reserved. Batches containing it are rejected at apply time.
	ModMerge ModificationKind = "merge"
)

// TaskModification is one item in an ordered modification batch. Only the
// fields relevant to its Kind are populated; everything else stays zero.
type TaskModification struct {
	Kind ModificationKind `json:"kind"`

	// add
	Title        string   `json:"title,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	RequiresPlan bool     `json:"requires_plan,omitempty"`

	// delete, modify, block, split
	TaskID string `json:"task_id,omitempty"`

	// delete
	Reason string `json:"reason,omitempty"`

	// modify: nil pointers mean "leave unchanged"
	NewTitle       *string   `json:"new_title,omitempty"`
	NewDescription *string   `json:"new_description,omitempty"`
	NewPriority    *Priority `json:"new_priority,omitempty"`
	NewDeps        *[]string `json:"new_dependencies,omitempty"`

	// block
	BlockedBy string `json:"blocked_by,omitempty"`

	// split
	Subtasks []string `json:"subtasks,omitempty"`

	// merge (reserved)
	TaskIDs []string `json:"task_ids,omitempty"`
}
