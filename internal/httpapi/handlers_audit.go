package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agentwatch/agentwatch/internal/audit"
)

func (s *Server) handleAuditTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.Options{
		Limit:           atoiDefault(q.Get("limit"), 100),
		Offset:          atoiDefault(q.Get("offset"), 0),
		Category:        q.Get("category"),
		IncludeInferred: q.Get("include_inferred") != "false",
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = t
		}
	}
	if until := q.Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			opts.Until = t
		}
	}

	result, err := s.Timeline.GetCompleteTimeline(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading timeline: "+err.Error())
		return
	}
	writeJSON(w, result)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
