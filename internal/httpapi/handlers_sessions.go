package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/agentwatch/agentwatch/internal/enrich"
)

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sessionsSlice(s.Hooks.GetAllSessions()))
}

func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := s.Hooks.GetSession(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session: "+id)
		return
	}
	writeJSON(w, toSessionDTO(sess))
}

func (s *Server) handleSessionCommits(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess := s.Hooks.GetSession(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session: "+id)
		return
	}
	writeJSON(w, map[string]any{"commits": sess.Commits})
}

func (s *Server) handleSessionEnrichment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Hooks.GetSession(id) == nil {
		writeError(w, http.StatusNotFound, "unknown session: "+id)
		return
	}
	ref := enrich.SessionRef{HookSessionID: id}.Canonical()
	e := s.Enrich.Get(ref)
	if e == nil {
		writeError(w, http.StatusNotFound, "no enrichment for session: "+id)
		return
	}
	writeJSON(w, e)
}

type annotateRequest struct {
	Feedback       string   `json:"feedback"`
	Notes          string   `json:"notes"`
	Tags           []string `json:"tags"`
	Rating         int      `json:"rating"`
	WorkflowStatus string   `json:"workflow_status"`
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Hooks.GetSession(id) == nil {
		writeError(w, http.StatusNotFound, "unknown session: "+id)
		return
	}
	var req annotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	ref := enrich.SessionRef{HookSessionID: id}.Canonical()
	ann := enrich.Annotation{
		Feedback:       enrich.Feedback(req.Feedback),
		Notes:          req.Notes,
		Tags:           req.Tags,
		Rating:         req.Rating,
		WorkflowStatus: req.WorkflowStatus,
	}
	if err := s.Enrich.Annotate(ref, ann); err != nil {
		writeError(w, http.StatusInternalServerError, "saving annotation: "+err.Error())
		return
	}
	writeJSON(w, map[string]string{"result": "ok"})
}
