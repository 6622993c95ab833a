package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"tubeautomator/internal/infra"
	"tubeautomator/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
)

var ErrEmptyToken = errors.New("credentials: token is required")

// Store keeps provider API keys in the integration_tokens table so the service
// can start without them in its environment.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	return s.SetToken(ctx, ProviderGemini, key, nil)
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

func (s *Store) DeleteToken(ctx context.Context, provider string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	return err
}
