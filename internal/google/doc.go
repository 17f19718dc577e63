// Package google handles OAuth2 authorization against Google.
//
// Authenticator runs the authorization code flow: AuthURL produces the
// consent URL together with a random state value, and Exchange turns the
// returned code into Credentials. Credentials carry everything needed to
// build an oauth2.TokenSource, so they can be handed around as a single JSON
// blob, kept in browser cookies by the HTTP server or persisted by a
// TokenStore for the command line tools.
package google
