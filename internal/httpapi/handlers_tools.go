package httpapi

import "net/http"

func (s *Server) handleToolStats(w http.ResponseWriter, r *http.Request) {
	stats := s.Hooks.GetToolStats()
	out := make([]toolStatDTO, 0, len(stats))
	for _, stat := range stats {
		out = append(out, toToolStatDTO(stat))
	}
	writeJSON(w, out)
}
