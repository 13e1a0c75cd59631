package model

// File type markers for .voxplan YAML documents.
const (
	FileTypePlanInbox = "plan_inbox"
	FileTypeStateTree = "state_tree"
	FileTypeRejected  = "rejected_plan"
)

// PlanDocument is the on-disk contract with the upstream planning service:
// one planning call's raw output dropped into plans/inbox/.
type PlanDocument struct {
	SchemaVersion int       `yaml:"schema_version"`
	FileType      string    `yaml:"file_type"`
	SessionID     string    `yaml:"session_id"`
	Goals         []RawGoal `yaml:"goals"`
}

// TreeDocument is a normalized tree persisted under state/trees/.
type TreeDocument struct {
	SchemaVersion int            `yaml:"schema_version"`
	FileType      string         `yaml:"file_type"`
	Tree          NormalizedTree `yaml:"tree"`
	NormalizedAt  string         `yaml:"normalized_at"`
}

// RejectedDocument wraps an inbox document that failed normalization, moved
// to rejected/ with the failure attached.
type RejectedDocument struct {
	SchemaVersion int          `yaml:"schema_version"`
	FileType      string       `yaml:"file_type"`
	Original      PlanDocument `yaml:"original"`
	ErrorCode     string       `yaml:"error_code"`
	Error         string       `yaml:"error"`
	RejectedAt    string       `yaml:"rejected_at"`
}

// RawTreeFromDocument lifts an inbox document's goals into a RawTree.
func RawTreeFromDocument(doc PlanDocument) RawTree {
	return RawTree{Goals: doc.Goals}
}
