package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/teemow/inbleach/internal/google"
)

// Cookie names set by the OAuth callback
const (
	cookieState        = "oauth_state"
	cookieAccessToken  = "access_token"
	cookieRefreshToken = "refresh_token"
	cookieTokenURI     = "token_uri"
	cookieClientID     = "client_id"
	cookieClientSecret = "client_secret"
	cookieScopes       = "scopes"
	cookieCredentials  = "credentials"
)

// stateCookieMaxAge bounds how long a consent flow may take
const stateCookieMaxAge = 600

func (a *API) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", a.cfg.SecureCookies, true)
}

func (a *API) clearCookie(c *gin.Context, name string) {
	a.setCookie(c, name, "", -1)
}

// setCredentialCookies writes each credential field as its own cookie plus
// the serialized credentials blob. Session cookies, no Max-Age.
func (a *API) setCredentialCookies(c *gin.Context, creds *google.Credentials) error {
	blob, err := creds.JSON()
	if err != nil {
		return err
	}

	a.setCookie(c, cookieAccessToken, creds.Token, 0)
	a.setCookie(c, cookieRefreshToken, creds.RefreshToken, 0)
	a.setCookie(c, cookieTokenURI, creds.TokenURI, 0)
	a.setCookie(c, cookieClientID, creds.ClientID, 0)
	a.setCookie(c, cookieClientSecret, creds.ClientSecret, 0)
	a.setCookie(c, cookieScopes, strings.Join(creds.Scopes, " "), 0)
	a.setCookie(c, cookieCredentials, string(blob), 0)
	return nil
}

// credentialsFromCookies rebuilds the caller's credentials. It reports false
// when the access token cookie is absent or empty.
func credentialsFromCookies(c *gin.Context) (*google.Credentials, bool) {
	token := cookieValue(c, cookieAccessToken)
	if token == "" {
		return nil, false
	}

	return &google.Credentials{
		Token:        token,
		RefreshToken: cookieValue(c, cookieRefreshToken),
		TokenURI:     cookieValue(c, cookieTokenURI),
		ClientID:     cookieValue(c, cookieClientID),
		ClientSecret: cookieValue(c, cookieClientSecret),
		Scopes:       strings.Fields(cookieValue(c, cookieScopes)),
	}, true
}

func cookieValue(c *gin.Context, name string) string {
	v, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return v
}
