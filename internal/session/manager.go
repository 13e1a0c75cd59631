// Package session tracks interactive sessions: server-minted or
// client-supplied identifiers, message history, and the per-session goal
// numbering high-water mark consumed by normalization.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/msageha/voxplan/internal/model"
)

type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*model.Session
	maxHistory int
	maxCount   int
}

func NewManager(cfg model.SessionConfig, maxSessions int) *Manager {
	maxHistory := cfg.MaxHistoryMessages
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Manager{
		sessions:   make(map[string]*model.Session),
		maxHistory: maxHistory,
		maxCount:   maxSessions,
	}
}

// Open returns the session for clientSessionID, creating it if needed. An
// empty ID mints a fresh server-side session. A non-canonical client ID is
// rejected; the client must request a server-minted one instead. The second
// return reports whether the call created the session.
func (m *Manager) Open(clientSessionID string) (*model.Session, bool, error) {
	sessionID := clientSessionID
	if sessionID == "" {
		sessionID = model.NewSessionID()
	} else if !model.IsCanonical(sessionID, model.KindSession) {
		return nil, false, &model.InvalidSessionFormatError{SessionID: sessionID}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		s.LastActiveAt = now()
		return copySession(s), false, nil
	}

	if m.maxCount > 0 && len(m.sessions) >= m.maxCount {
		// Evict the least recently active cleared session first; active
		// sessions are never evicted.
		m.evictOneCleared()
	}

	ts := now()
	s := &model.Session{
		SessionID:    sessionID,
		Status:       model.SessionStatusActive,
		CreatedAt:    ts,
		LastActiveAt: ts,
	}
	m.sessions[sessionID] = s
	return copySession(s), true, nil
}

// Get returns a copy of the session, or nil if it does not exist.
func (m *Manager) Get(sessionID string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	return copySession(s)
}

// RecordTree advances the session's goal numbering high-water mark after a
// successful normalization and returns the goal base the NEXT planning call
// should use. Unknown sessions are created implicitly; the daemon accepts
// inbox documents for sessions minted by earlier deployments.
func (m *Manager) RecordTree(sessionID string, goalsMinted uint) uint {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		ts := now()
		s = &model.Session{
			SessionID:    sessionID,
			Status:       model.SessionStatusActive,
			CreatedAt:    ts,
			LastActiveAt: ts,
		}
		m.sessions[sessionID] = s
	}
	s.GoalsMinted += goalsMinted
	s.TreesProcessed++
	s.LastActiveAt = now()
	return s.GoalsMinted
}

// GoalBase returns the goal sequence offset for the session's next planning
// call (0 for unknown sessions).
func (m *Manager) GoalBase(sessionID string) uint {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s.GoalsMinted
	}
	return 0
}

// Touch updates the session's last-activity timestamp without changing
// anything else. Returns false for unknown sessions.
func (m *Manager) Touch(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.LastActiveAt = now()
	return true
}

// AppendMessage records a history entry, trimming oldest entries beyond the
// configured bound.
func (m *Manager) AppendMessage(sessionID string, role model.MessageRole, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	s.History = append(s.History, model.Message{
		Role:    role,
		Content: content,
		At:      now(),
	})
	if len(s.History) > m.maxHistory {
		s.History = s.History[len(s.History)-m.maxHistory:]
	}
	s.LastActiveAt = now()
}

// Clear marks the session cleared and drops its history. The record itself
// stays so its goal numbering is never reused.
func (m *Manager) Clear(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.Status = model.SessionStatusCleared
	s.History = nil
	return true
}

// List returns copies of all sessions ordered by creation time.
func (m *Manager) List() []*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (m *Manager) evictOneCleared() {
	var oldest *model.Session
	for _, s := range m.sessions {
		if s.Status != model.SessionStatusCleared {
			continue
		}
		if oldest == nil || s.LastActiveAt < oldest.LastActiveAt {
			oldest = s
		}
	}
	if oldest != nil {
		delete(m.sessions, oldest.SessionID)
	}
}

func copySession(s *model.Session) *model.Session {
	out := *s
	out.History = append([]model.Message(nil), s.History...)
	return &out
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
