// Package normalize rewrites raw planning trees into canonical form. The
// upstream planning service is untrusted: its identifiers are arbitrary
// strings, so every goal and plan is re-minted positionally and every
// depends_on reference is rewritten through a per-call mapping. A call either
// normalizes completely or is rejected whole; partial trees are never emitted.
package normalize

import (
	"github.com/msageha/voxplan/internal/lock"
	"github.com/msageha/voxplan/internal/model"
)

type Engine struct {
	// sessions serializes normalization per session ID. Two planning calls
	// for the same session would otherwise mint colliding goal sequence
	// numbers.
	sessions *lock.MutexMap
}

func NewEngine() *Engine {
	return &Engine{
		sessions: lock.NewMutexMap(),
	}
}

// Normalize canonicalizes one planning call's output against a session,
// numbering goals from 1.
func (e *Engine) Normalize(sessionID string, raw model.RawTree) (*model.NormalizedTree, error) {
	return e.NormalizeWithBase(sessionID, 0, raw)
}

// NormalizeWithBase canonicalizes with goal sequence numbers starting at
// goalBase+1. Callers pass the session's minted-goal high-water mark so a
// later planning call continues the session's numbering.
func (e *Engine) NormalizeWithBase(sessionID string, goalBase uint, raw model.RawTree) (*model.NormalizedTree, error) {
	if !model.IsCanonical(sessionID, model.KindSession) {
		return nil, &model.InvalidSessionFormatError{SessionID: sessionID}
	}

	var tree *model.NormalizedTree
	var err error
	e.sessions.Do(sessionID, func() {
		tree, err = canonicalize(sessionID, goalBase, raw)
	})
	return tree, err
}

func canonicalize(sessionID string, goalBase uint, raw model.RawTree) (*model.NormalizedTree, error) {
	tree := &model.NormalizedTree{SessionID: sessionID}

	if len(raw.Goals) == 0 {
		tree.Empty = true
		return tree, nil
	}

	// First pass: mint canonical IDs positionally and accumulate the
	// raw-to-canonical mapping. Raw IDs are never kept even when they already
	// look canonical; upstream cannot be trusted to maintain uniqueness or
	// session scoping. Duplicate raw IDs each get their own canonical ID and
	// the mapping keeps the last occurrence.
	mapping := make(map[string]string)
	seen := make(map[string]bool)

	tree.Goals = make([]model.Goal, 0, len(raw.Goals))
	for i, rawGoal := range raw.Goals {
		goalSeq := goalBase + uint(i) + 1
		goalID, err := model.FormatGoalID(sessionID, goalSeq)
		if err != nil {
			return nil, err
		}

		if rawGoal.ID != "" {
			if seen[rawGoal.ID] {
				tree.DuplicateRawIDs = append(tree.DuplicateRawIDs, rawGoal.ID)
			}
			seen[rawGoal.ID] = true
			mapping[rawGoal.ID] = goalID
		}

		goal := model.Goal{
			GoalID:   goalID,
			RawID:    rawGoal.ID,
			Label:    rawGoal.Label,
			Sequence: goalSeq,
			Plans:    make([]model.Plan, 0, len(rawGoal.Plans)),
		}

		for j, rawPlan := range rawGoal.Plans {
			planID, err := model.FormatPlanID(goalSeq, uint(j)+1)
			if err != nil {
				return nil, err
			}

			if rawPlan.ID != "" {
				if seen[rawPlan.ID] {
					tree.DuplicateRawIDs = append(tree.DuplicateRawIDs, rawPlan.ID)
				}
				seen[rawPlan.ID] = true
				mapping[rawPlan.ID] = planID
			}

			goal.Plans = append(goal.Plans, model.Plan{
				PlanID:      planID,
				RawID:       rawPlan.ID,
				ActionType:  rawPlan.ActionType,
				Description: rawPlan.Description,
			})
		}

		tree.Goals = append(tree.Goals, goal)
	}

	// Second pass: rewrite dependency references. A reference that resolves
	// to nothing in this call rejects the whole call.
	for gi, rawGoal := range raw.Goals {
		for pi, rawPlan := range rawGoal.Plans {
			if len(rawPlan.DependsOn) == 0 {
				continue
			}
			deps := make([]string, 0, len(rawPlan.DependsOn))
			for _, ref := range rawPlan.DependsOn {
				canonical, ok := mapping[ref]
				if !ok {
					return nil, &model.UnresolvedDependencyError{
						RawRef:    ref,
						RawPlanID: rawPlan.ID,
					}
				}
				deps = append(deps, canonical)
			}
			tree.Goals[gi].Plans[pi].DependsOn = deps
		}
	}

	return tree, nil
}
