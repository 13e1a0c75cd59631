// Package registry issues per-plan command sequence numbers and renders them
// into canonical command identifiers. Counters live for the process lifetime;
// sequence numbers are never reused, even across retries of a failed command.
package registry

import (
	"sync"
	"time"

	"github.com/msageha/voxplan/internal/model"
)

// planCounter holds one plan's sequence state. Each counter carries its own
// mutex so issuance for one plan never contends with issuance for another;
// the registry-level lock only guards the map itself.
type planCounter struct {
	mu   sync.Mutex
	next uint
}

type Registry struct {
	mu       sync.RWMutex
	counters map[string]*planCounter
}

func New() *Registry {
	return &Registry{
		counters: make(map[string]*planCounter),
	}
}

// NextCommandID increments the plan's counter and renders the new value as a
// canonical command ID. The counter is created lazily at 0 on first use.
// Increment-then-format is a single critical section per plan.
func (r *Registry) NextCommandID(planID string) (string, error) {
	if !model.IsCanonical(planID, model.KindPlan) {
		return "", &model.InvalidPlanFormatError{PlanID: planID}
	}

	c := r.counter(planID)
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := model.FormatCommandID(planID, c.next+1)
	if err != nil {
		return "", err
	}
	c.next++
	return id, nil
}

// Issue is NextCommandID plus a command record carrying the issuance
// timestamp and, for retries, the command being re-attempted.
func (r *Registry) Issue(planID string, attemptOf *string) (*model.CommandRecord, error) {
	if attemptOf != nil {
		if _, err := model.CommandPlanID(*attemptOf); err != nil {
			return nil, err
		}
	}

	id, err := r.NextCommandID(planID)
	if err != nil {
		return nil, err
	}
	seq, err := model.CommandSequence(id)
	if err != nil {
		return nil, err
	}
	return &model.CommandRecord{
		CommandID: id,
		PlanID:    planID,
		Sequence:  seq,
		AttemptOf: attemptOf,
		IssuedAt:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Reset discards the counter for a plan whose identifier namespace is being
// retired. Fails if the plan was never touched.
func (r *Registry) Reset(planID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.counters[planID]; !ok {
		return &model.UnknownPlanError{PlanID: planID}
	}
	delete(r.counters, planID)
	return nil
}

// Peek returns the plan's current counter value without advancing it.
func (r *Registry) Peek(planID string) (uint, error) {
	r.mu.RLock()
	c, ok := r.counters[planID]
	r.mu.RUnlock()
	if !ok {
		return 0, &model.UnknownPlanError{PlanID: planID}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next, nil
}

// Snapshot returns a copy of every plan's current counter value.
func (r *Registry) Snapshot() map[string]uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]uint, len(r.counters))
	for planID, c := range r.counters {
		c.mu.Lock()
		snap[planID] = c.next
		c.mu.Unlock()
	}
	return snap
}

func (r *Registry) counter(planID string) *planCounter {
	r.mu.RLock()
	c, ok := r.counters[planID]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[planID]; ok {
		return c
	}
	c = &planCounter{}
	r.counters[planID] = c
	return c
}
