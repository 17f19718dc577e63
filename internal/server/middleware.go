package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/teemow/inbleach/internal/google"
	"github.com/teemow/inbleach/internal/logging"
)

// HeaderRequestID carries the request id in both directions
const HeaderRequestID = "X-Request-ID"

const (
	ctxKeyRequestID   = "request_id"
	ctxKeyCredentials = "credentials"
)

// requestIDMiddleware reuses an incoming X-Request-ID or assigns a new one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// accessLogMiddleware logs each request and records HTTP metrics
func (a *API) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		a.metrics.RecordHTTPRequest(c.Request.Context(), c.Request.Method, route, status, duration)
		a.logger.Info("http request",
			logging.RequestID(requestID(c)),
			"method", c.Request.Method,
			"route", route,
			logging.KeyStatus, status,
			logging.KeyDuration, duration)
	}
}

// requireAuth rejects requests without an access token cookie before any
// provider call is made
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, ok := credentialsFromCookies(c)
		if !ok {
			abortWithMessage(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		c.Set(ctxKeyCredentials, creds)
		c.Next()
	}
}

func credentials(c *gin.Context) *google.Credentials {
	v, _ := c.Get(ctxKeyCredentials)
	creds, _ := v.(*google.Credentials)
	return creds
}
