package httpapi

import "net/http"

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"agents": agentsSlice(s.Live.GetAgents()),
		"repos":  reposSlice(s.Live.GetRepos()),
		"ports":  portsSlice(s.Live.GetPorts()),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, agentsSlice(s.Live.GetAgents()))
}

func (s *Server) handleRepos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, reposSlice(s.Live.GetRepos()))
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, portsSlice(s.Live.GetPorts()))
}
