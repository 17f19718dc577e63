package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Credentials are the OAuth2 user credentials needed to call Gmail on a
// user's behalf, including what is needed to refresh the access token.
type Credentials struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// newCredentials combines a token with the client configuration that issued it
func newCredentials(conf *oauth2.Config, tok *oauth2.Token) *Credentials {
	return &Credentials{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     conf.Endpoint.TokenURL,
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
		Scopes:       append([]string(nil), conf.Scopes...),
		Expiry:       tok.Expiry,
	}
}

// ParseCredentials decodes the JSON form produced by Credentials.JSON
func ParseCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// JSON encodes the credentials as a single JSON object
func (c *Credentials) JSON() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	return data, nil
}

// Validate checks that the credentials carry an access token. Freshness is
// not checked; the provider rejects stale tokens itself.
func (c *Credentials) Validate() error {
	if c == nil || c.Token == "" {
		return errors.New("credentials have no access token")
	}
	return nil
}

// TokenSource returns a token source that uses the access token and
// refreshes it through TokenURI when it expires.
func (c *Credentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: c.TokenURI},
		Scopes:       c.Scopes,
	}
	return conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  c.Token,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	})
}
