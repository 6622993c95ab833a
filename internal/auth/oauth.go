package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"tubeautomator/internal/infra"
)

const (
	// UploadScope allows video uploads and thumbnail changes.
	UploadScope = "https://www.googleapis.com/auth/youtube.upload"

	defaultStateTTL = 10 * time.Minute
)

var (
	ErrUnknownState = errors.New("auth: unknown or expired consent state")
	ErrMissingCode  = errors.New("auth: authorization code is required")
)

type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint
	Scopes   []string
	// OnConsent is called with each freshly minted consent URL.
	OnConsent func(consentURL string)
	StateTTL  time.Duration
	Now       func() time.Time
	Logger    *infra.Logger
}

// OAuthProvider runs the authorization-code flow against Google and holds the
// resulting access token in memory.
type OAuthProvider struct {
	cfg       *oauth2.Config
	onConsent func(string)
	stateTTL  time.Duration
	now       func() time.Time
	logger    infra.Logger

	mu         sync.Mutex
	token      *oauth2.Token
	pending    map[string]time.Time
	consentURL string
}

// Status is a snapshot of the held credential.
type Status struct {
	Authorized bool       `json:"authorized"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	ConsentURL string     `json:"consent_url,omitempty"`
}

func NewOAuthProvider(opts OAuthOptions) (*OAuthProvider, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, errors.New("auth: client id and secret are required")
	}
	if strings.TrimSpace(opts.RedirectURL) == "" {
		return nil, errors.New("auth: redirect url is required")
	}
	endpoint := opts.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = endpoints.Google
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{UploadScope}
	}
	ttl := opts.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &OAuthProvider{
		cfg: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		onConsent: opts.OnConsent,
		stateTTL:  ttl,
		now:       now,
		logger:    infra.LoggerOrNop(opts.Logger),
		pending:   make(map[string]time.Time),
	}, nil
}

// Token returns the held access token while it is still valid.
func (p *OAuthProvider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked() {
		return "", false
	}
	return p.token.AccessToken, true
}

// RequestToken mints a consent URL and publishes it. The token arrives later
// through Complete or Receive.
func (p *OAuthProvider) RequestToken(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := uuid.NewString()
	consentURL := p.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	p.mu.Lock()
	p.pruneLocked()
	p.pending[state] = p.now().Add(p.stateTTL)
	p.consentURL = consentURL
	p.mu.Unlock()

	p.logger.Info().Msg("auth: consent requested")
	if p.onConsent != nil {
		p.onConsent(consentURL)
	}
	return nil
}

// ConsentURL returns the most recent consent URL, if any.
func (p *OAuthProvider) ConsentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consentURL
}

// Complete exchanges an authorization code for a token. state must come from
// an earlier RequestToken call and is single use.
func (p *OAuthProvider) Complete(ctx context.Context, state, code string) error {
	state = strings.TrimSpace(state)
	code = strings.TrimSpace(code)

	p.mu.Lock()
	p.pruneLocked()
	_, ok := p.pending[state]
	if ok {
		delete(p.pending, state)
	}
	p.mu.Unlock()

	if !ok {
		return ErrUnknownState
	}
	if code == "" {
		return ErrMissingCode
	}
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("auth: exchange code: %w", err)
	}

	p.mu.Lock()
	p.token = tok
	p.consentURL = ""
	p.mu.Unlock()
	p.logger.Info().Time("expiry", tok.Expiry).Msg("auth: token received")
	return nil
}

// Receive stores a bearer token obtained out of band.
func (p *OAuthProvider) Receive(accessToken string, expiry time.Time) {
	p.mu.Lock()
	p.token = &oauth2.Token{AccessToken: strings.TrimSpace(accessToken), TokenType: "Bearer", Expiry: expiry}
	p.consentURL = ""
	p.mu.Unlock()
}

// Invalidate drops the held token, e.g. after the host rejected it.
func (p *OAuthProvider) Invalidate() {
	p.mu.Lock()
	p.token = nil
	p.mu.Unlock()
	p.logger.Info().Msg("auth: token invalidated")
}

func (p *OAuthProvider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{ConsentURL: p.consentURL}
	if p.validLocked() {
		st.Authorized = true
		if !p.token.Expiry.IsZero() {
			expiry := p.token.Expiry
			st.Expiry = &expiry
		}
		st.ConsentURL = ""
	}
	return st
}

func (p *OAuthProvider) validLocked() bool {
	if p.token == nil || p.token.AccessToken == "" {
		return false
	}
	return p.token.Expiry.IsZero() || p.now().Before(p.token.Expiry)
}

func (p *OAuthProvider) pruneLocked() {
	now := p.now()
	for state, expires := range p.pending {
		if now.After(expires) {
			delete(p.pending, state)
		}
	}
}

var _ Provider = (*OAuthProvider)(nil)
