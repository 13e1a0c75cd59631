package model

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type EntityKind string

const (
	KindSession EntityKind = "session"
	KindGoal    EntityKind = "goal"
	KindPlan    EntityKind = "plan"
	KindCommand EntityKind = "command"
)

// Canonical layouts. Sequence fields are zero-padded to a fixed width but may
// grow past it once a counter overflows the padding; the patterns accept that.
//
//	sess_20250909_163532_ek30
//	goal_ek30_001
//	plan_001_02
//	cmd_plan_001_02_003
var (
	sessionIDRegex = regexp.MustCompile(`^sess_([0-9]{8})_([0-9]{6})_([a-z0-9]{4})$`)
	goalIDRegex    = regexp.MustCompile(`^goal_([a-z0-9]{4})_([0-9]{3,})$`)
	planIDRegex    = regexp.MustCompile(`^plan_([0-9]{3,})_([0-9]{2,})$`)
	commandIDRegex = regexp.MustCompile(`^cmd_(plan_[0-9]{3,}_[0-9]{2,})_([0-9]{3,})$`)
)

var kindRegexes = map[EntityKind]*regexp.Regexp{
	KindSession: sessionIDRegex,
	KindGoal:    goalIDRegex,
	KindPlan:    planIDRegex,
	KindCommand: commandIDRegex,
}

// suffixAlphabet is the generation alphabet for session suffixes. Ambiguous
// glyphs (i, l, o) are excluded from generation; validation accepts the full
// [a-z0-9] class so sessions minted by older clients remain canonical.
const suffixAlphabet = "abcdefghjkmnpqrstuvwxyz0123456789"

const suffixLength = 4

// NewSessionID mints a session identifier from the current clock and a random
// suffix. crypto/rand.Read never returns an error on supported platforms.
func NewSessionID() string {
	return NewSessionIDAt(time.Now())
}

// NewSessionIDAt mints a session identifier for the given timestamp.
func NewSessionIDAt(t time.Time) string {
	b := make([]byte, suffixLength)
	rand.Read(b)
	suffix := make([]byte, suffixLength)
	for i, v := range b {
		suffix[i] = suffixAlphabet[int(v)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("sess_%s_%s", t.Format("20060102_150405"), suffix)
}

// FormatGoalID mints a goal identifier embedding the session's random suffix
// and a 1-based, zero-padded sequence number.
func FormatGoalID(sessionID string, seq uint) (string, error) {
	suffix, err := SessionSuffix(sessionID)
	if err != nil {
		return "", err
	}
	if seq < 1 {
		return "", &InvalidSequenceError{Kind: KindGoal, Field: "sequence", Value: seq}
	}
	return fmt.Sprintf("goal_%s_%03d", suffix, seq), nil
}

// FormatPlanID mints a plan identifier from the owning goal's sequence number
// and the plan's 1-based index within that goal. Both fields are zero-padded
// so lexical sort order matches creation order.
func FormatPlanID(goalSeq, planSeq uint) (string, error) {
	if goalSeq < 1 {
		return "", &InvalidSequenceError{Kind: KindPlan, Field: "goal_sequence", Value: goalSeq}
	}
	if planSeq < 1 {
		return "", &InvalidSequenceError{Kind: KindPlan, Field: "plan_sequence", Value: planSeq}
	}
	return fmt.Sprintf("plan_%03d_%02d", goalSeq, planSeq), nil
}

// FormatCommandID mints a command identifier. The full plan identifier is
// embedded as a prefix so a command ID alone discloses its whole ancestry.
func FormatCommandID(planID string, cmdSeq uint) (string, error) {
	if !IsCanonical(planID, KindPlan) {
		return "", fmt.Errorf("non-canonical plan ID: %q", planID)
	}
	if cmdSeq < 1 {
		return "", &InvalidSequenceError{Kind: KindCommand, Field: "command_sequence", Value: cmdSeq}
	}
	return fmt.Sprintf("cmd_%s_%03d", planID, cmdSeq), nil
}

// IsCanonical reports whether candidate conforms to the canonical layout for
// the given entity kind. Unknown kinds are never canonical.
func IsCanonical(candidate string, kind EntityKind) bool {
	re, ok := kindRegexes[kind]
	if !ok {
		return false
	}
	return re.MatchString(candidate)
}

// SessionSuffix extracts the random suffix from a canonical session ID.
func SessionSuffix(sessionID string) (string, error) {
	m := sessionIDRegex.FindStringSubmatch(sessionID)
	if m == nil {
		return "", &InvalidSessionFormatError{SessionID: sessionID}
	}
	return m[3], nil
}

// ParseSessionTime recovers the mint timestamp embedded in a session ID.
func ParseSessionTime(sessionID string) (time.Time, error) {
	m := sessionIDRegex.FindStringSubmatch(sessionID)
	if m == nil {
		return time.Time{}, &InvalidSessionFormatError{SessionID: sessionID}
	}
	t, err := time.Parse("20060102_150405", m[1]+"_"+m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session timestamp from %s: %w", sessionID, err)
	}
	return t, nil
}

// ParsePlanID recovers the goal and plan sequence numbers from a plan ID.
func ParsePlanID(planID string) (goalSeq, planSeq uint, err error) {
	m := planIDRegex.FindStringSubmatch(planID)
	if m == nil {
		return 0, 0, fmt.Errorf("non-canonical plan ID: %q", planID)
	}
	g, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parse goal sequence from %s: %w", planID, err)
	}
	p, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("parse plan sequence from %s: %w", planID, err)
	}
	return uint(g), uint(p), nil
}

// CommandPlanID recovers the embedded plan ID from a command ID.
func CommandPlanID(commandID string) (string, error) {
	m := commandIDRegex.FindStringSubmatch(commandID)
	if m == nil {
		return "", fmt.Errorf("non-canonical command ID: %q", commandID)
	}
	return m[1], nil
}

// CommandSequence recovers the per-plan sequence number from a command ID.
func CommandSequence(commandID string) (uint, error) {
	m := commandIDRegex.FindStringSubmatch(commandID)
	if m == nil {
		return 0, fmt.Errorf("non-canonical command ID: %q", commandID)
	}
	n, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse command sequence from %s: %w", commandID, err)
	}
	return uint(n), nil
}

// GoalSessionSuffix recovers the session suffix embedded in a goal ID.
func GoalSessionSuffix(goalID string) (string, error) {
	m := goalIDRegex.FindStringSubmatch(goalID)
	if m == nil {
		return "", fmt.Errorf("non-canonical goal ID: %q", goalID)
	}
	return m[1], nil
}

// GoalSequence recovers the session-scoped sequence number from a goal ID.
func GoalSequence(goalID string) (uint, error) {
	m := goalIDRegex.FindStringSubmatch(goalID)
	if m == nil {
		return 0, fmt.Errorf("non-canonical goal ID: %q", goalID)
	}
	n, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse goal sequence from %s: %w", goalID, err)
	}
	return uint(n), nil
}

// KindOf classifies a canonical identifier by its prefix. Commands are checked
// before plans because every command ID also begins with a plan fragment.
func KindOf(id string) (EntityKind, error) {
	switch {
	case strings.HasPrefix(id, "sess_") && IsCanonical(id, KindSession):
		return KindSession, nil
	case strings.HasPrefix(id, "goal_") && IsCanonical(id, KindGoal):
		return KindGoal, nil
	case strings.HasPrefix(id, "cmd_") && IsCanonical(id, KindCommand):
		return KindCommand, nil
	case strings.HasPrefix(id, "plan_") && IsCanonical(id, KindPlan):
		return KindPlan, nil
	}
	return "", fmt.Errorf("unrecognized identifier: %q", id)
}
