package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/agentwatch/agentwatch/internal/enrich"
	"github.com/agentwatch/agentwatch/internal/hookstore"
)

// continueResponse is returned by every hook endpoint on success, per
// §4.K: "Hook callback endpoints return {result: 'continue'} on
// success; the response shape mirrors what the host agent expects."
var continueResponse = map[string]string{"result": "continue"}

func decodeHookBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return false
	}
	return true
}

type sessionStartRequest struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	PermissionMode string `json:"permission_mode"`
	Source         string `json:"source"`
}

func (s *Server) handleHookSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if !decodeHookBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	source := hookstore.SessionSource(req.Source)
	if source == "" {
		source = hookstore.SourceStartup
	}
	sess := s.Hooks.SessionStart(req.SessionID, req.TranscriptPath, req.Cwd, req.PermissionMode, source)
	if s.Pipeline != nil {
		s.Pipeline.CacheSessionStart(sess.ID, sess.Cwd)
	}
	if s.AuditLog != nil {
		s.AuditLog.Log("session", "start", sess.ID, nil)
	}
	writeJSON(w, continueResponse)
}

type sessionIDRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleHookSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req sessionIDRequest
	if !decodeHookBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	sess := s.Hooks.SessionEnd(req.SessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session: "+req.SessionID)
		return
	}
	if s.AuditLog != nil {
		s.AuditLog.Log("session", "end", sess.ID, nil)
	}
	s.runEnrichment(sess)
	writeJSON(w, continueResponse)
}

// runEnrichment computes and persists the post-session enrichment record
// for sess, per §4.I. Pipeline failures never fail the hook response --
// the host agent must see {result: continue} regardless.
func (s *Server) runEnrichment(sess *hookstore.Session) {
	if s.Pipeline == nil || s.Enrich == nil {
		return
	}
	usages := s.Hooks.GetToolUsagesForSession(sess.ID)
	views := make([]enrich.ToolUsageView, 0, len(usages))
	for _, u := range usages {
		views = append(views, enrich.ToolUsageView{
			ToolName:  u.ToolName,
			ToolInput: u.ToolInput,
			Response:  u.ToolResponse,
			Error:     u.Error,
			Success:   u.Success(),
			Timestamp: u.Timestamp,
		})
	}
	ref := enrich.SessionRef{HookSessionID: sess.ID}
	e := s.Pipeline.Run(ref, views, sess.Cwd, enrich.SourceHook)
	if err := s.Enrich.Put(e); err != nil {
		log.Printf("[httpapi] persisting enrichment for session %s: %v", sess.ID, err)
		return
	}
	if s.AuditLog != nil {
		s.AuditLog.Log("enrichment", "computed", e.Ref, nil)
	}
}

func (s *Server) handleHookStop(w http.ResponseWriter, r *http.Request) {
	var req sessionIDRequest
	if !decodeHookBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	s.Hooks.UpdateSessionAwaiting(req.SessionID, true)
	writeJSON(w, continueResponse)
}

type preToolUseRequest struct {
	SessionID string `json:"session_id"`
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name"`
	ToolInput any    `json:"tool_input"`
	Cwd       string `json:"cwd"`
}

func (s *Server) handleHookPreToolUse(w http.ResponseWriter, r *http.Request) {
	var req preToolUseRequest
	if !decodeHookBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.ToolUseID == "" || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "session_id, tool_use_id, and tool_name are required")
		return
	}
	s.Hooks.RecordPreToolUse(req.SessionID, req.ToolUseID, req.ToolName, req.ToolInput, req.Cwd)
	writeJSON(w, continueResponse)
}

type postToolUseRequest struct {
	ToolUseID    string `json:"tool_use_id"`
	ToolResponse any    `json:"tool_response"`
	Error        string `json:"error"`
}

func (s *Server) handleHookPostToolUse(w http.ResponseWriter, r *http.Request) {
	var req postToolUseRequest
	if !decodeHookBody(w, r, &req) {
		return
	}
	if req.ToolUseID == "" {
		writeError(w, http.StatusBadRequest, "tool_use_id is required")
		return
	}
	usage := s.Hooks.RecordPostToolUse(req.ToolUseID, req.ToolResponse, req.Error)
	if usage != nil && usage.ToolName == "Bash" && usage.Error == "" {
		s.attributeCommit(usage)
	}
	writeJSON(w, continueResponse)
}

func (s *Server) attributeCommit(usage *hookstore.ToolUsage) {
	text := ""
	if m, ok := usage.ToolResponse.(map[string]any); ok {
		if out, ok := m["stdout"].(string); ok {
			text = out
		}
	} else if str, ok := usage.ToolResponse.(string); ok {
		text = str
	}
	if text == "" {
		return
	}
	hash, message, ok := hookstore.ExtractCommit(text)
	if !ok {
		return
	}
	s.Hooks.RecordCommit(usage.SessionID, hash, message, usage.Cwd)
	if s.AuditLog != nil {
		s.AuditLog.Log("commit", "attributed", hash, map[string]string{"session_id": usage.SessionID})
	}
}

type securityBlockRequest struct {
	SessionID string `json:"session_id"`
	ToolName  string `json:"tool_name"`
	ToolInput any    `json:"tool_input"`
	RuleName  string `json:"rule_name"`
	Reason    string `json:"reason"`
}

func (s *Server) handleHookSecurityBlock(w http.ResponseWriter, r *http.Request) {
	var req securityBlockRequest
	if !decodeHookBody(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "session_id and tool_name are required")
		return
	}
	s.Hooks.RecordSecurityBlock(req.SessionID, req.ToolName, req.ToolInput, req.RuleName, req.Reason)
	writeJSON(w, continueResponse)
}
