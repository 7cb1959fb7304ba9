package server

import (
	"net/http"

	"github.com/campushq/campus/internal/storage"
)

func (s *server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	offset, limit := parsePagination(r)
	resp := listResponse{Data: []struct{}{}, Pagination: pagination{Offset: offset, Limit: limit}}
	if s.deps.Activity == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	id := caller(r)
	events, err := s.deps.Activity.ListActivities(r.Context(), storage.ActivityFilter{
		UserID:   id.UserID,
		TenantID: id.TenantID,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Data = events
	writeJSON(w, http.StatusOK, resp)
}
