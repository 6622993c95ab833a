package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tubeautomator/internal/auth"
	"tubeautomator/internal/domain"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/pipeline"
)

// JobService is the orchestrator surface the API exposes.
type JobService interface {
	Submit(req pipeline.NewJob) (domain.Job, error)
	Jobs() []domain.Job
	Job(id string) (domain.Job, error)
	Upload(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) error
}

type SourceStore interface {
	Save(ctx context.Context, key string, r io.Reader) (string, int64, error)
	Remove(key string) error
}

// ConsentFlow is the browser side of the OAuth provider.
type ConsentFlow interface {
	RequestToken(ctx context.Context) error
	ConsentURL() string
	Complete(ctx context.Context, state, code string) error
	Status() auth.Status
	Invalidate()
}

type App struct {
	Jobs    JobService
	Sources SourceStore
	// Consent is nil when no OAuth client is configured.
	Consent ConsentFlow
	// Publications is nil when no database is configured.
	Publications   domain.PublicationRepository
	Logger         infra.Logger
	MaxUploadBytes int64
	NewKey         func() string
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	ConsentURL string `json:"consent_url,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// jobError maps orchestrator sentinels onto status codes.
func (a *App) jobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrEmptyConcept):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNoSourceFile):
		a.error(w, http.StatusUnprocessableEntity, "no_source_file", err.Error())
	case errors.Is(err, domain.ErrUploadInFlight):
		a.error(w, http.StatusConflict, "upload_in_flight", err.Error())
	case errors.Is(err, domain.ErrNotReady):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrCredentialRequired):
		resp := errorResponse{Error: "credential_required", Message: err.Error()}
		if a.Consent != nil {
			resp.ConsentURL = a.Consent.ConsentURL()
		} else {
			resp.Message = "no upload credential is available and no consent flow is configured"
		}
		a.json(w, http.StatusUnauthorized, resp)
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: unexpected job error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
