package server

import "net/http"

type darkModeBody struct {
	DarkMode bool `json:"dark_mode"`
}

func (s *Server) handleGetDarkMode(w http.ResponseWriter, r *http.Request) {
	on, err := s.prefs.DarkMode(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, darkModeBody{DarkMode: on})
}

func (s *Server) handleSetDarkMode(w http.ResponseWriter, r *http.Request) {
	var in darkModeBody
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.prefs.SetDarkMode(r.Context(), in.DarkMode); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}
