package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/agentwatch/agentwatch/internal/audit"
	"github.com/agentwatch/agentwatch/internal/enrich"
	"github.com/agentwatch/agentwatch/internal/hookstore"
	"github.com/agentwatch/agentwatch/internal/livestore"
	"github.com/agentwatch/agentwatch/internal/wshub"
)

// Server is the HTTP+WebSocket surface. It never mutates scanner state --
// it reads from Live, and its hook and annotation endpoints write to
// Hooks, Enrich and the audit log.
type Server struct {
	Live     *livestore.Store
	Hooks    *hookstore.Store
	Timeline *audit.Timeline
	AuditLog *audit.Logger
	Enrich   *enrich.Store
	Pipeline *enrich.Pipeline
	Hub      *wshub.Hub

	staticHandler  http.Handler // optional UI assets, served at "/"
	authToken      string
	allowedOrigins map[string]bool
}

// Config configures a Server.
type Config struct {
	StaticHandler  http.Handler
	AuthToken      string
	AllowedOrigins []string
}

// New creates a Server wired to the given stores.
func New(live *livestore.Store, hooks *hookstore.Store, timeline *audit.Timeline, auditLog *audit.Logger, enrichStore *enrich.Store, hub *wshub.Hub, cfg Config) *Server {
	s := &Server{
		Live:           live,
		Hooks:          hooks,
		Timeline:       timeline,
		AuditLog:       auditLog,
		Enrich:         enrichStore,
		Pipeline:       enrich.New(enrich.DefaultWeights()),
		Hub:            hub,
		staticHandler:  cfg.StaticHandler,
		authToken:      cfg.AuthToken,
		allowedOrigins: make(map[string]bool),
	}
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			s.allowedOrigins[trimmed] = true
		}
	}
	return s
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)

	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/repos", s.handleRepos)
	mux.HandleFunc("GET /api/ports", s.handlePorts)

	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionDetail)
	mux.HandleFunc("GET /api/sessions/{id}/commits", s.handleSessionCommits)
	mux.HandleFunc("GET /api/sessions/{id}/enrichment", s.handleSessionEnrichment)
	mux.HandleFunc("POST /api/sessions/{id}/annotation", s.handleAnnotate)

	mux.HandleFunc("GET /api/tools/stats", s.handleToolStats)

	mux.HandleFunc("GET /api/audit/timeline", s.handleAuditTimeline)

	mux.HandleFunc("POST /api/hooks/session-start", s.handleHookSessionStart)
	mux.HandleFunc("POST /api/hooks/session-end", s.handleHookSessionEnd)
	mux.HandleFunc("POST /api/hooks/pre-tool-use", s.handleHookPreToolUse)
	mux.HandleFunc("POST /api/hooks/post-tool-use", s.handleHookPostToolUse)
	mux.HandleFunc("POST /api/hooks/security-block", s.handleHookSecurityBlock)
	mux.HandleFunc("POST /api/hooks/stop", s.handleHookStop)

	if s.staticHandler != nil {
		mux.Handle("/", s.staticHandler)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil {
		return s.allowedOrigins[parsed.Host]
	}
	return false
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	return got == "Bearer "+s.authToken
}

// writeJSON writes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] encoding response: %v", err)
	}
}

// writeError writes {"error": msg} with the given status, per §4.K:
// unknown ids return 404, invalid request bodies return 400.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	upgrader.CheckOrigin = s.checkOrigin

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[httpapi] ws upgrade: %v", err)
		return
	}
	peer := s.Hub.Register(conn)

	init := map[string]any{
		"type":     "init",
		"agents":   agentsSlice(s.Live.GetAgents()),
		"repos":    reposSlice(s.Live.GetRepos()),
		"ports":    portsSlice(s.Live.GetPorts()),
		"sessions": sessionsSlice(s.Hooks.GetAllSessions()),
	}
	if err := peer.SendInit(init); err != nil {
		s.Hub.Unregister(peer)
		return
	}

	peer.ReadLoop(func() { s.Hub.Unregister(peer) })
}

func agentsSlice(m map[int]*livestore.Agent) []agentDTO {
	out := make([]agentDTO, 0, len(m))
	for _, a := range m {
		out = append(out, toAgentDTO(a))
	}
	return out
}

func reposSlice(m map[string]*livestore.Repo) []repoDTO {
	out := make([]repoDTO, 0, len(m))
	for _, r := range m {
		out = append(out, toRepoDTO(r))
	}
	return out
}

func portsSlice(m map[int]*livestore.Port) []portDTO {
	out := make([]portDTO, 0, len(m))
	for _, p := range m {
		out = append(out, toPortDTO(p))
	}
	return out
}

func sessionsSlice(list []*hookstore.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(list))
	for _, sess := range list {
		out = append(out, toSessionDTO(sess))
	}
	return out
}
