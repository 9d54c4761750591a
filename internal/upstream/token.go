package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/cabinbooking/internal/credential"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// OAuthFetcher obtains tokens with the client-credentials grant.
type OAuthFetcher struct {
	cfg  clientcredentials.Config
	http *http.Client
	now  func() time.Time
}

func NewOAuthFetcher(tokenURL, clientID, clientSecret string, scopes []string, hc *http.Client) *OAuthFetcher {
	return &OAuthFetcher{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		},
		http: hc,
		now:  time.Now,
	}
}

// FetchToken always hits the token endpoint; caching is the credential manager's job.
func (f *OAuthFetcher) FetchToken(ctx context.Context) (credential.Grant, error) {
	if f.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.http)
	}

	tok, err := f.cfg.Token(ctx)
	if err != nil {
		return credential.Grant{}, fmt.Errorf("fetch upstream token: %w", err)
	}

	lifetime := defaultTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = tok.Expiry.Sub(f.now())
	}
	return credential.Grant{AccessToken: tok.AccessToken, ExpiresIn: lifetime}, nil
}

var _ credential.Fetcher = (*OAuthFetcher)(nil)
