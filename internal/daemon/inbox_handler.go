package daemon

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/voxplan/internal/model"
	"github.com/msageha/voxplan/internal/yaml"
)

// InboxHandler consumes planning documents dropped into plans/inbox/. A
// document is processed exactly once even when fsnotify and the periodic scan
// race on it; singleflight collapses concurrent attempts per path.
type InboxHandler struct {
	voxplanDir string
	config     model.Config
	pipeline   *Pipeline
	logger     *log.Logger
	logLevel   LogLevel
	group      singleflight.Group
}

func NewInboxHandler(voxplanDir string, cfg model.Config, pipeline *Pipeline, logger *log.Logger, logLevel LogLevel) *InboxHandler {
	return &InboxHandler{
		voxplanDir: voxplanDir,
		config:     cfg,
		pipeline:   pipeline,
		logger:     logger,
		logLevel:   logLevel,
	}
}

// HandleFileEvent processes one inbox path from a filesystem event.
func (h *InboxHandler) HandleFileEvent(path string) {
	if !h.isInboxDocument(path) {
		return
	}
	h.process(path)
}

// PeriodicScan sweeps the inbox for documents fsnotify missed (dropped
// events, files present before the daemon started).
func (h *InboxHandler) PeriodicScan() {
	inboxDir := filepath.Join(h.voxplanDir, h.config.Planner.InboxDir)
	entries, err := os.ReadDir(inboxDir)
	if err != nil {
		if !os.IsNotExist(err) {
			h.log(LogLevelError, "scan inbox: %v", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(inboxDir, entry.Name())
		if !h.isInboxDocument(path) {
			continue
		}
		h.process(path)
	}
}

func (h *InboxHandler) isInboxDocument(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	if strings.HasSuffix(name, ".bak") {
		return false
	}
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (h *InboxHandler) process(path string) {
	_, err, _ := h.group.Do(path, func() (any, error) {
		return nil, h.processFile(path)
	})
	if err != nil {
		h.log(LogLevelError, "process %s: %v", filepath.Base(path), err)
	}
}

// processFile runs one document through the pipeline. Structurally corrupt
// files are quarantined; domain rejections move to rejected/ with the failure
// attached; only transient I/O errors leave the file in place for retry.
func (h *InboxHandler) processFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already consumed by an earlier event for the same file
			return nil
		}
		return fmt.Errorf("stat: %w", err)
	}

	if max := h.config.Limits.MaxYAMLFileBytes; max > 0 && info.Size() > int64(max) {
		h.log(LogLevelWarn, "oversized inbox document %s (%d bytes), quarantining", filepath.Base(path), info.Size())
		return yaml.Quarantine(h.voxplanDir, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	if err := yaml.ValidateSchemaHeaderFromBytes(content, model.FileTypePlanInbox); err != nil {
		h.log(LogLevelWarn, "invalid inbox document %s: %v", filepath.Base(path), err)
		return yaml.Quarantine(h.voxplanDir, path)
	}

	var doc model.PlanDocument
	if err := yamlv3.Unmarshal(content, &doc); err != nil {
		h.log(LogLevelWarn, "unparseable inbox document %s: %v", filepath.Base(path), err)
		return yaml.Quarantine(h.voxplanDir, path)
	}

	tree, err := h.pipeline.Process(doc.SessionID, model.RawTreeFromDocument(doc))
	if err != nil {
		var coder model.Coder
		if errors.As(err, &coder) {
			return h.reject(path, doc, coder.ErrorCode(), err)
		}
		if errors.Is(err, ErrTreeTooLarge) {
			return h.reject(path, doc, "TREE_TOO_LARGE", err)
		}
		return fmt.Errorf("pipeline: %w", err)
	}

	if tree.Empty {
		h.log(LogLevelInfo, "inbox document %s proposed zero goals", filepath.Base(path))
	} else {
		h.log(LogLevelInfo, "inbox document %s normalized, goals=%d", filepath.Base(path), tree.GoalCount())
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove consumed document: %w", err)
	}
	return nil
}

// reject moves a failed document to rejected/ with the failure attached so
// the planner can inspect what it sent.
func (h *InboxHandler) reject(path string, doc model.PlanDocument, code string, cause error) error {
	rejectedDir := filepath.Join(h.voxplanDir, h.config.Planner.RejectedDir)
	if err := os.MkdirAll(rejectedDir, 0755); err != nil {
		return fmt.Errorf("create rejected dir: %w", err)
	}

	out := model.RejectedDocument{
		SchemaVersion: yaml.CurrentSchemaVersion,
		FileType:      model.FileTypeRejected,
		Original:      doc,
		ErrorCode:     code,
		Error:         cause.Error(),
		RejectedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s.%s.rejected.yaml", base, time.Now().Format("20060102T150405"))
	if err := yaml.AtomicWrite(filepath.Join(rejectedDir, name), out); err != nil {
		return fmt.Errorf("write rejected document: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove rejected document: %w", err)
	}
	h.log(LogLevelWarn, "rejected %s code=%s: %v", filepath.Base(path), code, cause)
	return nil
}

func (h *InboxHandler) log(level LogLevel, format string, args ...any) {
	if level < h.logLevel {
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
	h.logger.Printf("%s %s inbox: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
