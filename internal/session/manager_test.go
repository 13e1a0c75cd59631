package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/voxplan/internal/model"
)

func newManager() *Manager {
	return NewManager(model.SessionConfig{MaxHistoryMessages: 5}, 0)
}

func TestManager_Open_MintsServerSession(t *testing.T) {
	m := newManager()

	s, created, err := m.Open("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, model.IsCanonical(s.SessionID, model.KindSession))
	assert.Equal(t, model.SessionStatusActive, s.Status)
}

func TestManager_Open_AcceptsCanonicalClientSession(t *testing.T) {
	m := newManager()

	s, created, err := m.Open("sess_20250909_163532_ek30")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sess_20250909_163532_ek30", s.SessionID)

	again, created, err := m.Open("sess_20250909_163532_ek30")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, s.SessionID, again.SessionID)
}

func TestManager_Open_RejectsMalformedClientSession(t *testing.T) {
	m := newManager()

	_, _, err := m.Open("my-session-1")
	var sessErr *model.InvalidSessionFormatError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "my-session-1", sessErr.SessionID)
}

func TestManager_RecordTree_AdvancesGoalBase(t *testing.T) {
	m := newManager()
	const sid = "sess_20250909_163532_ek30"

	_, _, err := m.Open(sid)
	require.NoError(t, err)

	assert.Equal(t, uint(0), m.GoalBase(sid))
	assert.Equal(t, uint(2), m.RecordTree(sid, 2))
	assert.Equal(t, uint(2), m.GoalBase(sid))
	assert.Equal(t, uint(3), m.RecordTree(sid, 1))

	s := m.Get(sid)
	require.NotNil(t, s)
	assert.Equal(t, uint(3), s.GoalsMinted)
	assert.Equal(t, uint(2), s.TreesProcessed)
}

func TestManager_Touch(t *testing.T) {
	m := newManager()
	const sid = "sess_20250909_163532_ek30"

	assert.False(t, m.Touch(sid))

	_, _, err := m.Open(sid)
	require.NoError(t, err)

	assert.True(t, m.Touch(sid))

	s := m.Get(sid)
	require.NotNil(t, s)
	assert.GreaterOrEqual(t, s.LastActiveAt, s.CreatedAt)
	// Touch leaves everything but the activity timestamp alone
	assert.Equal(t, uint(0), s.GoalsMinted)
	assert.Empty(t, s.History)
}

func TestManager_AppendMessage_TrimsHistory(t *testing.T) {
	m := newManager()
	const sid = "sess_20250909_163532_ek30"

	_, _, err := m.Open(sid)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		m.AppendMessage(sid, model.RolePlayer, fmt.Sprintf("message %d", i))
	}

	s := m.Get(sid)
	require.NotNil(t, s)
	require.Len(t, s.History, 5)
	assert.Equal(t, "message 3", s.History[0].Content)
	assert.Equal(t, "message 7", s.History[4].Content)
}

func TestManager_Clear(t *testing.T) {
	m := newManager()
	const sid = "sess_20250909_163532_ek30"

	_, _, err := m.Open(sid)
	require.NoError(t, err)
	m.AppendMessage(sid, model.RolePlayer, "hello")
	m.RecordTree(sid, 3)

	assert.True(t, m.Clear(sid))
	assert.False(t, m.Clear("sess_20250909_163532_zz99"))

	s := m.Get(sid)
	require.NotNil(t, s)
	assert.Equal(t, model.SessionStatusCleared, s.Status)
	assert.Empty(t, s.History)
	// goal numbering survives clearing so IDs are never reused
	assert.Equal(t, uint(3), m.GoalBase(sid))
}

func TestManager_Get_ReturnsCopy(t *testing.T) {
	m := newManager()
	const sid = "sess_20250909_163532_ek30"

	_, _, err := m.Open(sid)
	require.NoError(t, err)
	m.AppendMessage(sid, model.RolePlayer, "hello")

	s := m.Get(sid)
	s.History[0].Content = "mutated"
	s.GoalsMinted = 99

	fresh := m.Get(sid)
	assert.Equal(t, "hello", fresh.History[0].Content)
	assert.Equal(t, uint(0), fresh.GoalsMinted)
}

func TestManager_List_OrderedByCreation(t *testing.T) {
	m := newManager()

	ids := []string{
		"sess_20250909_163532_ek30",
		"sess_20250909_163533_ab12",
	}
	for _, sid := range ids {
		_, _, err := m.Open(sid)
		require.NoError(t, err)
	}

	got := m.List()
	require.Len(t, got, 2)
}

func TestManager_EvictsOnlyClearedSessions(t *testing.T) {
	m := NewManager(model.SessionConfig{MaxHistoryMessages: 5}, 2)

	_, _, err := m.Open("sess_20250909_163532_ek30")
	require.NoError(t, err)
	_, _, err = m.Open("sess_20250909_163533_ab12")
	require.NoError(t, err)

	m.Clear("sess_20250909_163532_ek30")

	_, created, err := m.Open("sess_20250909_163534_cd34")
	require.NoError(t, err)
	assert.True(t, created)

	assert.Nil(t, m.Get("sess_20250909_163532_ek30"))
	assert.NotNil(t, m.Get("sess_20250909_163533_ab12"))
}
