package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/msageha/voxplan/internal/events"
	"github.com/msageha/voxplan/internal/model"
	"github.com/msageha/voxplan/internal/uds"
)

// registerHandlers wires the UDS command set.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", d.handlePing)
	d.server.Handle("status", d.handleStatus)
	d.server.Handle("scan", d.handleScan)
	d.server.Handle("shutdown", d.handleShutdown)
	d.server.Handle("session_open", d.handleSessionOpen)
	d.server.Handle("session_clear", d.handleSessionClear)
	d.server.Handle("plan_submit", d.handlePlanSubmit)
	d.server.Handle("next_command_id", d.handleNextCommandID)
	d.server.Handle("counter_peek", d.handleCounterPeek)
	d.server.Handle("counter_reset", d.handleCounterReset)
}

// errorResponse maps a failure onto a protocol error code. Typed domain
// errors carry their own codes; everything else is internal.
func errorResponse(err error) *uds.Response {
	var coder model.Coder
	if errors.As(err, &coder) {
		return uds.ErrorResponse(coder.ErrorCode(), err.Error())
	}
	if errors.Is(err, ErrTreeTooLarge) {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
}

func (d *Daemon) handlePing(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(map[string]any{
		"pong": true,
		"pid":  os.Getpid(),
	})
}

func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	sessions := d.sessions.List()
	sessionSummaries := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		sessionSummaries = append(sessionSummaries, map[string]any{
			"session_id":      s.SessionID,
			"status":          s.Status,
			"goals_minted":    s.GoalsMinted,
			"trees_processed": s.TreesProcessed,
			"last_active_at":  s.LastActiveAt,
		})
	}

	return uds.SuccessResponse(map[string]any{
		"pid":        os.Getpid(),
		"uptime_sec": int(time.Since(d.started).Seconds()),
		"sessions":   sessionSummaries,
		"counters":   d.registry.Snapshot(),
	})
}

func (d *Daemon) handleScan(req *uds.Request) *uds.Response {
	d.inbox.PeriodicScan()
	return uds.SuccessResponse(map[string]any{"scanned": true})
}

func (d *Daemon) handleShutdown(req *uds.Request) *uds.Response {
	// Respond first, then shut down; the client's connection would be torn
	// down mid-frame otherwise.
	go func() {
		time.Sleep(100 * time.Millisecond)
		d.Shutdown()
	}()
	return uds.SuccessResponse(map[string]any{"shutting_down": true})
}

type sessionOpenParams struct {
	SessionID string `json:"session_id,omitempty"`
}

func (d *Daemon) handleSessionOpen(req *uds.Request) *uds.Response {
	var params sessionOpenParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
		}
	}

	s, created, err := d.sessions.Open(params.SessionID)
	if err != nil {
		return errorResponse(err)
	}

	details := map[string]interface{}{
		"request_id": req.RequestID,
		"session_id": s.SessionID,
		"created":    created,
	}
	d.bus.Publish(events.EventSessionOpened, details)
	if err := d.audit.Log(string(events.EventSessionOpened), details); err != nil {
		d.log(LogLevelError, "audit write failed: %v", err)
	}

	return uds.SuccessResponse(map[string]any{
		"session_id":   s.SessionID,
		"created":      created,
		"status":       s.Status,
		"goals_minted": s.GoalsMinted,
	})
}

type sessionClearParams struct {
	SessionID string `json:"session_id"`
}

// handleSessionClear retires a session's history. The session record stays so
// its goal numbering is never reused by a later call.
func (d *Daemon) handleSessionClear(req *uds.Request) *uds.Response {
	var params sessionClearParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.SessionID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "session_id is required")
	}

	if !d.sessions.Clear(params.SessionID) {
		return uds.ErrorResponse(uds.ErrCodeNotFound, fmt.Sprintf("unknown session: %s", params.SessionID))
	}
	return uds.SuccessResponse(map[string]any{
		"session_id": params.SessionID,
		"cleared":    true,
	})
}

type planSubmitParams struct {
	SessionID string          `json:"session_id"`
	Goals     []model.RawGoal `json:"goals"`
}

func (d *Daemon) handlePlanSubmit(req *uds.Request) *uds.Response {
	var params planSubmitParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.SessionID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "session_id is required")
	}

	tree, err := d.pipeline.Process(params.SessionID, model.RawTree{Goals: params.Goals})
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(tree)
}

type nextCommandIDParams struct {
	PlanID    string  `json:"plan_id"`
	AttemptOf *string `json:"attempt_of,omitempty"`
}

func (d *Daemon) handleNextCommandID(req *uds.Request) *uds.Response {
	var params nextCommandIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.PlanID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "plan_id is required")
	}

	rec, err := d.registry.Issue(params.PlanID, params.AttemptOf)
	if err != nil {
		return errorResponse(err)
	}

	details := map[string]interface{}{
		"request_id": req.RequestID,
		"plan_id":    rec.PlanID,
		"command_id": rec.CommandID,
	}
	if rec.AttemptOf != nil {
		details["attempt_of"] = *rec.AttemptOf
	}
	d.bus.Publish(events.EventCommandIssued, details)
	if err := d.audit.Log(string(events.EventCommandIssued), details); err != nil {
		d.log(LogLevelError, "audit write failed: %v", err)
	}

	return uds.SuccessResponse(rec)
}

type counterPeekParams struct {
	PlanID string `json:"plan_id"`
}

// handleCounterPeek reads a plan's counter without consuming a sequence
// number.
func (d *Daemon) handleCounterPeek(req *uds.Request) *uds.Response {
	var params counterPeekParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.PlanID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "plan_id is required")
	}

	issued, err := d.registry.Peek(params.PlanID)
	if err != nil {
		return errorResponse(err)
	}
	return uds.SuccessResponse(map[string]any{
		"plan_id": params.PlanID,
		"issued":  issued,
	})
}

type counterResetParams struct {
	PlanID string `json:"plan_id"`
}

func (d *Daemon) handleCounterReset(req *uds.Request) *uds.Response {
	var params counterResetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
	}
	if params.PlanID == "" {
		return uds.ErrorResponse(uds.ErrCodeValidation, "plan_id is required")
	}

	if err := d.registry.Reset(params.PlanID); err != nil {
		return errorResponse(err)
	}

	details := map[string]interface{}{
		"request_id": req.RequestID,
		"plan_id":    params.PlanID,
	}
	d.bus.Publish(events.EventCounterReset, details)
	if err := d.audit.Log(string(events.EventCounterReset), details); err != nil {
		d.log(LogLevelError, "audit write failed: %v", err)
	}

	return uds.SuccessResponse(map[string]any{
		"plan_id": params.PlanID,
		"reset":   true,
	})
}
