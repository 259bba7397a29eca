package googleauth

import (
	"context"
	"log"
	"net/http"
	"time"

	syncdomain "leadpulse-backend/internal/sync/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// notifyTokenSource wraps an oauth2.TokenSource and fires a callback when the
// access token rotates, so refreshed tokens get persisted.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback syncdomain.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[GoogleAuth] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewHTTPClient builds an authenticated HTTP client for Google APIs from
// stored account credentials. If a refresh token is present the access token
// is marked expired so the first call refreshes eagerly.
func NewHTTPClient(ctx context.Context, clientID, clientSecret string, creds syncdomain.Credentials) *http.Client {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: creds.OnRefresh,
	}

	return oauth2.NewClient(ctx, wrapped)
}
