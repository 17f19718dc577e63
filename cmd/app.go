package cmd

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/teemow/inbleach/internal/config"
	"github.com/teemow/inbleach/internal/gmail"
	"github.com/teemow/inbleach/internal/google"
	"github.com/teemow/inbleach/internal/instrumentation"
	"github.com/teemow/inbleach/internal/logging"
)

func newAuthenticator(c *config.Config) (*google.Authenticator, error) {
	auth, err := google.NewAuthenticatorFromFile(c.Google.CredentialsFile, c.OAuthRedirectURL(), c.Google.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google client configuration: %w", err)
	}
	return auth, nil
}

func newResolver(c *config.Config, l logging.Logger, m *instrumentation.Metrics) *gmail.Resolver {
	return gmail.NewResolver(gmail.ResolverConfig{
		Timeout:          c.Unsubscribe.Timeout,
		UserAgent:        c.Unsubscribe.UserAgent,
		PromotionalLabel: c.Unsubscribe.PromotionalLabel,
		ProcessAll:       !c.Unsubscribe.RequirePromotional,
		Logger:           l,
		Metrics:          m,
	})
}

func newTokenStore(c *config.Config) (google.TokenStore, error) {
	return google.NewTokenStore(c.Google.TokenStore, c.Google.TokenFile)
}

// storedClient builds a Gmail client from the credentials in the token store.
// The returned save function writes back a refreshed access token.
func storedClient(ctx context.Context, c *config.Config, l logging.Logger) (*gmail.Client, func() error, error) {
	store, err := newTokenStore(c)
	if err != nil {
		return nil, nil, err
	}
	creds, err := store.Load()
	if err != nil {
		return nil, nil, err
	}

	ts := oauth2.ReuseTokenSource(nil, creds.TokenSource(ctx))
	client, err := gmail.NewClient(ctx, gmail.ClientConfig{
		TokenSource: ts,
		Resolver:    newResolver(c, l, nil),
		Logger:      l,
	})
	if err != nil {
		return nil, nil, err
	}

	save := func() error {
		tok, err := ts.Token()
		if err != nil || tok.AccessToken == creds.Token {
			return nil
		}
		creds.Token = tok.AccessToken
		creds.Expiry = tok.Expiry
		if tok.RefreshToken != "" {
			creds.RefreshToken = tok.RefreshToken
		}
		return store.Save(creds)
	}
	return client, save, nil
}
