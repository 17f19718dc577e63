package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teemow/inbleach/internal/gmail"
	"github.com/teemow/inbleach/internal/google"
	"github.com/teemow/inbleach/internal/instrumentation"
	"github.com/teemow/inbleach/internal/logging"
)

// Message render formats accepted by GET /messages/:id
const (
	FormatRaw  = "raw"
	FormatHTML = "html"
)

// WelcomeMessage is returned by GET /
const WelcomeMessage = "Welcome to the InBleach API"

// MailClient is the part of gmail.Client the API depends on
type MailClient interface {
	ListMessages(ctx context.Context, since time.Time) ([]gmail.MessageRef, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	BulkUnsubscribe(ctx context.Context, ids []string) *gmail.UnsubscribeResult
}

// ClientFactory builds a mail client for one request's credentials
type ClientFactory func(ctx context.Context, creds *google.Credentials) (MailClient, error)

// GmailClientFactory returns a ClientFactory creating gmail.Clients that
// share base and authorize with the request's credentials.
func GmailClientFactory(base gmail.ClientConfig) ClientFactory {
	return func(ctx context.Context, creds *google.Credentials) (MailClient, error) {
		cfg := base
		cfg.TokenSource = creds.TokenSource(ctx)
		client, err := gmail.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Config configures the API
type Config struct {
	FrontendURL   string
	SecureCookies bool
	// DefaultDays is used when days_requested is absent
	DefaultDays int
	// DefaultFormat is used when format is absent
	DefaultFormat string

	Authenticator *google.Authenticator
	Clients       ClientFactory
	Health        *HealthChecker
	Logger        logging.Logger
	Metrics       *instrumentation.Metrics
}

// API serves the HTTP endpoints
type API struct {
	cfg     Config
	auth    *google.Authenticator
	clients ClientFactory
	health  *HealthChecker
	logger  logging.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
	engine  *gin.Engine
}

// NewAPI builds the API and its gin router
func NewAPI(cfg Config) (*API, error) {
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if cfg.Clients == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if cfg.DefaultDays < 1 {
		cfg.DefaultDays = 1
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = FormatRaw
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthChecker()
	}

	a := &API{
		cfg:     cfg,
		auth:    cfg.Authenticator,
		clients: cfg.Clients,
		health:  cfg.Health,
		logger:  logging.OrDefault(cfg.Logger),
		metrics: cfg.Metrics,
		now:     time.Now,
	}
	a.engine = a.routes()
	return a, nil
}

// Handler returns the HTTP handler serving every route
func (a *API) Handler() http.Handler {
	return a.engine
}

func (a *API) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), a.accessLogMiddleware())

	r.GET("/", a.handleRoot)
	a.health.RegisterHealthEndpoints(r)

	auth := r.Group("/auth")
	{
		auth.GET("/google", a.handleAuthGoogle)
		auth.GET("/callback/google", a.handleAuthCallback)
		auth.GET("/status/google", a.handleAuthStatus)
	}

	messages := r.Group("/messages", requireAuth())
	{
		messages.GET("", a.handleListMessages)
		messages.GET("/:id", a.handleGetMessage)
		messages.GET("/unsubscribe", a.handleNoIDs)
		messages.GET("/unsubscribe/:ids", a.handleUnsubscribe)
	}

	return r
}

func (a *API) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": WelcomeMessage})
}

func (a *API) handleAuthGoogle(c *gin.Context) {
	authURL, state, err := a.auth.AuthURL()
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	a.setCookie(c, cookieState, state, stateCookieMaxAge)
	c.JSON(http.StatusOK, gin.H{"url": authURL})
}

func (a *API) handleAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()

	state := c.Query("state")
	stored := cookieValue(c, cookieState)
	if stored == "" || state != stored {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultStateInvalid)
		a.logger.Warn("oauth state mismatch", logging.RequestID(requestID(c)))
		abortWithMessage(c, http.StatusBadRequest, "invalid state parameter")
		return
	}

	creds, err := a.auth.Exchange(ctx, c.Query("code"))
	if err != nil {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		a.abortWithError(c, err)
		return
	}

	if err := a.setCredentialCookies(c, creds); err != nil {
		a.abortWithError(c, err)
		return
	}
	a.clearCookie(c, cookieState)
	a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	a.logger.Info("oauth login completed",
		logging.RequestID(requestID(c)),
		"access_token", logging.SanitizeToken(creds.Token))

	c.Redirect(http.StatusTemporaryRedirect, a.cfg.FrontendURL)
}

func (a *API) handleAuthStatus(c *gin.Context) {
	_, ok := credentialsFromCookies(c)
	c.JSON(http.StatusOK, gin.H{"authenticated": ok})
}

func (a *API) handleListMessages(c *gin.Context) {
	days := a.cfg.DefaultDays
	if raw := c.Query("days_requested"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortWithMessage(c, http.StatusBadRequest, "days_requested must be a positive integer")
			return
		}
		days = n
	}

	client, ok := a.client(c)
	if !ok {
		return
	}

	since := a.now().AddDate(0, 0, -days)
	refs, err := client.ListMessages(c.Request.Context(), since)
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": refs})
}

func (a *API) handleGetMessage(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", a.cfg.DefaultFormat))
	if format != FormatRaw && format != FormatHTML {
		abortWithMessage(c, http.StatusBadRequest, "format must be raw or html")
		return
	}

	client, ok := a.client(c)
	if !ok {
		return
	}

	id := c.Param("id")
	msg, err := client.GetMessage(c.Request.Context(), id)
	if err != nil {
		a.abortWithError(c, err)
		return
	}

	if format == FormatRaw {
		c.JSON(http.StatusOK, gin.H{"message": msg})
		return
	}

	html, found := gmail.ExtractHTML(msg)
	if !found {
		abortWithMessage(c, http.StatusNotFound, "message has no HTML part")
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": msg.ID, "html": html})
}

func (a *API) handleNoIDs(c *gin.Context) {
	abortWithMessage(c, http.StatusBadRequest, "no message ids")
}

func (a *API) handleUnsubscribe(c *gin.Context) {
	ids := strings.Split(c.Param("ids"), ",")
	if strings.Trim(c.Param("ids"), ", \"") == "" {
		a.handleNoIDs(c)
		return
	}

	client, ok := a.client(c)
	if !ok {
		return
	}

	a.logger.Info("bulk unsubscribe requested",
		logging.RequestID(requestID(c)),
		"count", len(ids))

	result := client.BulkUnsubscribe(c.Request.Context(), ids)
	c.JSON(http.StatusOK, result)
}

// client builds the mail client for the authenticated caller. On failure
// the response is already written.
func (a *API) client(c *gin.Context) (MailClient, bool) {
	creds := credentials(c)
	if creds == nil {
		abortWithMessage(c, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}

	client, err := a.clients(c.Request.Context(), creds)
	if err != nil {
		a.abortWithError(c, err)
		return nil, false
	}
	return client, true
}
