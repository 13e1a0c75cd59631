package daemon

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/msageha/voxplan/internal/events"
	"github.com/msageha/voxplan/internal/lock"
	"github.com/msageha/voxplan/internal/model"
	"github.com/msageha/voxplan/internal/normalize"
	"github.com/msageha/voxplan/internal/session"
	"github.com/msageha/voxplan/internal/yaml"
)

// ErrTreeTooLarge rejects a planning call exceeding the configured goal or
// plan bounds before any identifiers are minted for it.
var ErrTreeTooLarge = errors.New("planning tree exceeds configured limits")

// Pipeline runs one planning call end to end: read the session's goal
// numbering base, normalize, persist the canonical tree, advance the base.
// The whole sequence holds the session's mutex so two concurrent calls for
// the same session cannot both read the same base and mint colliding goal
// numbers. The normalize engine has its own per-session lock, but that one
// only covers minting, not the read-persist-record span.
type Pipeline struct {
	voxplanDir string
	config     model.Config
	sessions   *session.Manager
	engine     *normalize.Engine
	perSession *lock.MutexMap
	bus        *events.Bus
	audit      *events.AuditLogger
	logger     *log.Logger
	logLevel   LogLevel
}

func NewPipeline(voxplanDir string, cfg model.Config, sessions *session.Manager, engine *normalize.Engine, bus *events.Bus, audit *events.AuditLogger, logger *log.Logger, logLevel LogLevel) *Pipeline {
	return &Pipeline{
		voxplanDir: voxplanDir,
		config:     cfg,
		sessions:   sessions,
		engine:     engine,
		perSession: lock.NewMutexMap(),
		bus:        bus,
		audit:      audit,
		logger:     logger,
		logLevel:   logLevel,
	}
}

// Process normalizes one planning call against its session. On success the
// canonical tree is persisted under state/trees/ and the session's goal
// numbering advances past it. On failure nothing is persisted and the
// session's numbering is untouched.
func (p *Pipeline) Process(sessionID string, raw model.RawTree) (*model.NormalizedTree, error) {
	if err := p.checkLimits(raw); err != nil {
		return nil, err
	}

	var tree *model.NormalizedTree
	var err error
	p.perSession.Do(sessionID, func() {
		tree, err = p.process(sessionID, raw)
	})
	return tree, err
}

func (p *Pipeline) process(sessionID string, raw model.RawTree) (*model.NormalizedTree, error) {
	base := p.sessions.GoalBase(sessionID)

	tree, err := p.engine.NormalizeWithBase(sessionID, base, raw)
	if err != nil {
		p.log(LogLevelWarn, "normalization rejected session=%s err=%v", sessionID, err)
		p.publishRejected(sessionID, err)
		return nil, err
	}

	if tree.Empty {
		// No identifiers minted, but the planner did reach us
		p.sessions.Touch(sessionID)
		p.log(LogLevelInfo, "empty planning call session=%s", sessionID)
		return tree, nil
	}

	if err := p.persistTree(tree); err != nil {
		return nil, fmt.Errorf("persist normalized tree: %w", err)
	}

	mark := p.sessions.RecordTree(sessionID, tree.GoalCount())
	p.sessions.AppendMessage(sessionID, model.RoleSystem,
		fmt.Sprintf("normalized planning call: %d goals, %d plans (numbering at %d)",
			tree.GoalCount(), len(tree.PlanIDs()), mark))
	p.log(LogLevelInfo, "tree normalized session=%s goals=%d plans=%d mark=%d",
		sessionID, tree.GoalCount(), len(tree.PlanIDs()), mark)

	details := map[string]interface{}{
		"session_id": sessionID,
		"goals":      tree.GoalCount(),
		"plans":      len(tree.PlanIDs()),
	}
	if len(tree.DuplicateRawIDs) > 0 {
		details["duplicate_raw_ids"] = tree.DuplicateRawIDs
	}
	p.bus.Publish(events.EventTreeNormalized, details)
	if err := p.audit.Log(string(events.EventTreeNormalized), details); err != nil {
		p.log(LogLevelError, "audit write failed: %v", err)
	}

	return tree, nil
}

func (p *Pipeline) publishRejected(sessionID string, cause error) {
	details := map[string]interface{}{
		"session_id": sessionID,
		"error":      cause.Error(),
	}
	var coder model.Coder
	if errors.As(cause, &coder) {
		details["error_code"] = coder.ErrorCode()
	}
	p.bus.Publish(events.EventTreeRejected, details)
	if err := p.audit.Log(string(events.EventTreeRejected), details); err != nil {
		p.log(LogLevelError, "audit write failed: %v", err)
	}
}

// persistTree writes the canonical tree to state/trees/. The filename embeds
// the goal sequence range so successive calls for a session never collide.
func (p *Pipeline) persistTree(tree *model.NormalizedTree) error {
	treesDir := filepath.Join(p.voxplanDir, "state", "trees")
	if err := os.MkdirAll(treesDir, 0755); err != nil {
		return fmt.Errorf("create trees dir: %w", err)
	}

	first := tree.Goals[0].Sequence
	last := tree.Goals[len(tree.Goals)-1].Sequence
	name := fmt.Sprintf("%s_goals_%03d_%03d.yaml", tree.SessionID, first, last)

	doc := model.TreeDocument{
		SchemaVersion: yaml.CurrentSchemaVersion,
		FileType:      model.FileTypeStateTree,
		Tree:          *tree,
		NormalizedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	return yaml.AtomicWrite(filepath.Join(treesDir, name), doc)
}

func (p *Pipeline) checkLimits(raw model.RawTree) error {
	if max := p.config.Limits.MaxGoalsPerTree; max > 0 && len(raw.Goals) > max {
		return fmt.Errorf("%w: %d goals (max %d)", ErrTreeTooLarge, len(raw.Goals), max)
	}
	if max := p.config.Limits.MaxPlansPerGoal; max > 0 {
		for _, g := range raw.Goals {
			if len(g.Plans) > max {
				return fmt.Errorf("%w: goal %q has %d plans (max %d)", ErrTreeTooLarge, g.ID, len(g.Plans), max)
			}
		}
	}
	return nil
}

func (p *Pipeline) log(level LogLevel, format string, args ...any) {
	if level < p.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	p.logger.Printf("%s %s pipeline: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
