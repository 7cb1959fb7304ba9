package server

import "net/http"

const defaultPageSize = 20

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	size := queryInt(r, "page_size", defaultPageSize)
	result, err := s.deps.Leaderboard.Page(r.Context(), page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleLeaderboardMe(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Leaderboard.UserRank(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
