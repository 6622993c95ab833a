package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tubeautomator/internal/auth"
)

type authStatusResponse struct {
	Configured bool `json:"configured"`
	auth.Status
}

// AuthLogin starts the consent flow and redirects the browser to it.
func (a *App) AuthLogin(w http.ResponseWriter, r *http.Request) {
	if a.Consent == nil {
		a.error(w, http.StatusServiceUnavailable, "oauth_unconfigured", "no OAuth client configured")
		return
	}
	if err := a.Consent.RequestToken(r.Context()); err != nil {
		a.Logger.Error().Err(err).Msg("http: consent request failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not start consent flow")
		return
	}
	http.Redirect(w, r, a.Consent.ConsentURL(), http.StatusFound)
}

// AuthCallback receives the authorization code from the consent screen.
func (a *App) AuthCallback(w http.ResponseWriter, r *http.Request) {
	if a.Consent == nil {
		a.error(w, http.StatusServiceUnavailable, "oauth_unconfigured", "no OAuth client configured")
		return
	}
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		a.error(w, http.StatusBadRequest, "consent_denied", reason)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	if err := a.Consent.Complete(ctx, q.Get("state"), q.Get("code")); err != nil {
		switch {
		case errors.Is(err, auth.ErrUnknownState), errors.Is(err, auth.ErrMissingCode):
			a.error(w, http.StatusBadRequest, "invalid_callback", err.Error())
		default:
			a.Logger.Error().Err(err).Msg("http: token exchange failed")
			a.error(w, http.StatusBadGateway, "exchange_failed", "token exchange failed")
		}
		return
	}
	a.json(w, http.StatusOK, authStatusResponse{Configured: true, Status: a.Consent.Status()})
}

func (a *App) AuthStatus(w http.ResponseWriter, r *http.Request) {
	if a.Consent == nil {
		a.json(w, http.StatusOK, authStatusResponse{})
		return
	}
	a.json(w, http.StatusOK, authStatusResponse{Configured: true, Status: a.Consent.Status()})
}

func (a *App) AuthLogout(w http.ResponseWriter, r *http.Request) {
	if a.Consent != nil {
		a.Consent.Invalidate()
	}
	w.WriteHeader(http.StatusNoContent)
}
