package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrAuth is returned when the provider rejects an authorization code or token
var ErrAuth = errors.New("authorization failed")

// stateBytes is the amount of entropy in an OAuth state value
const stateBytes = 32

// Authenticator drives the OAuth2 authorization code flow against Google
type Authenticator struct {
	config *oauth2.Config
}

// NewAuthenticator wraps an existing OAuth2 client configuration
func NewAuthenticator(config *oauth2.Config) *Authenticator {
	return &Authenticator{config: config}
}

// NewAuthenticatorFromFile loads a Google client secret JSON file (the
// "installed" or "web" format downloaded from the Cloud console).
func NewAuthenticatorFromFile(path, redirectURL string, scopes []string) (*Authenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secret file: %w", err)
	}

	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	config, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client secret file: %w", err)
	}
	config.RedirectURL = redirectURL

	return NewAuthenticator(config), nil
}

// Config returns the underlying OAuth2 configuration
func (a *Authenticator) Config() *oauth2.Config {
	return a.config
}

// AuthURL returns the consent page URL and the fresh state value embedded in
// it. Offline access and a forced consent prompt make Google issue a refresh
// token on every authorization.
func (a *Authenticator) AuthURL() (string, string, error) {
	state, err := NewState()
	if err != nil {
		return "", "", err
	}
	url := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return url, state, nil
}

// Exchange trades an authorization code for credentials. A code the provider
// rejects yields an error wrapping ErrAuth.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*Credentials, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrAuth)
	}

	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	return newCredentials(a.config, tok), nil
}

// NewState returns a random, URL-safe OAuth state value
func NewState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
