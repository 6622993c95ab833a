package handlers

import (
	"net/http"
	"strconv"
	"time"
)

type publicationDTO struct {
	JobID       string    `json:"job_id"`
	RemoteID    string    `json:"remote_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}

// ListPublications returns the most recent completed uploads from the log.
func (a *App) ListPublications(w http.ResponseWriter, r *http.Request) {
	if a.Publications == nil {
		a.error(w, http.StatusServiceUnavailable, "publication_log_disabled", "no database configured")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	pubs, err := a.Publications.ListRecent(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: list publications failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not read publication log")
		return
	}
	out := make([]publicationDTO, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, publicationDTO{JobID: p.JobID, RemoteID: p.RemoteID, Title: p.Title, PublishedAt: p.PublishedAt})
	}
	a.json(w, http.StatusOK, map[string]any{"publications": out})
}
