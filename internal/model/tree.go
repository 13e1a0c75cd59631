package model

// RawTree is one planning call's output as received from the upstream
// planning service. Every identifier and dependency reference in it is
// untrusted free-form text. Tagged for both YAML (inbox documents) and JSON
// (UDS plan_submit params).
type RawTree struct {
	Goals []RawGoal `yaml:"goals" json:"goals"`
}

type RawGoal struct {
	ID    string    `yaml:"id" json:"id"`
	Label string    `yaml:"label,omitempty" json:"label,omitempty"`
	Plans []RawPlan `yaml:"plans" json:"plans"`
}

type RawPlan struct {
	ID          string   `yaml:"id" json:"id"`
	ActionType  string   `yaml:"action_type,omitempty" json:"action_type,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// NormalizedTree is the canonical form of one planning call. Ordering of
// goals and plans matches the raw input exactly.
type NormalizedTree struct {
	SessionID string `yaml:"session_id" json:"session_id"`
	// Empty marks a planning call that proposed zero goals (a no-op, not an
	// error).
	Empty bool   `yaml:"empty,omitempty" json:"empty,omitempty"`
	Goals []Goal `yaml:"goals" json:"goals"`
	// DuplicateRawIDs records raw identifier strings that appeared more than
	// once in the call. Each occurrence still received its own canonical ID;
	// dependency references against a duplicate resolved to the last
	// occurrence.
	DuplicateRawIDs []string `yaml:"duplicate_raw_ids,omitempty" json:"duplicate_raw_ids,omitempty"`
}

type Goal struct {
	GoalID   string `yaml:"goal_id" json:"goal_id"`
	RawID    string `yaml:"raw_id,omitempty" json:"raw_id,omitempty"`
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
	Sequence uint   `yaml:"sequence" json:"sequence"`
	Plans    []Plan `yaml:"plans" json:"plans"`
}

type Plan struct {
	PlanID      string   `yaml:"plan_id" json:"plan_id"`
	RawID       string   `yaml:"raw_id,omitempty" json:"raw_id,omitempty"`
	ActionType  string   `yaml:"action_type,omitempty" json:"action_type,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
}

// CommandRecord links an issued command identifier to its plan and, for
// retries, to the command it re-attempts. Retries never reuse an ID; the
// lineage lives here and in the audit log.
type CommandRecord struct {
	CommandID string  `yaml:"command_id" json:"command_id"`
	PlanID    string  `yaml:"plan_id" json:"plan_id"`
	Sequence  uint    `yaml:"sequence" json:"sequence"`
	AttemptOf *string `yaml:"attempt_of,omitempty" json:"attempt_of,omitempty"`
	IssuedAt  string  `yaml:"issued_at" json:"issued_at"`
}

// PlanIDs returns every canonical plan identifier in the tree, in input order.
func (t *NormalizedTree) PlanIDs() []string {
	var ids []string
	for _, g := range t.Goals {
		for _, p := range g.Plans {
			ids = append(ids, p.PlanID)
		}
	}
	return ids
}

// GoalCount returns the number of goals in the tree.
func (t *NormalizedTree) GoalCount() uint {
	return uint(len(t.Goals))
}
