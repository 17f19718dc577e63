package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teemow/inbleach/internal/gmail"
	"github.com/teemow/inbleach/internal/google"
	"github.com/teemow/inbleach/internal/logging"
)

// statusFor maps a domain error to the HTTP status returned to the caller
func statusFor(err error) int {
	var perr *gmail.ProviderError
	switch {
	case errors.Is(err, gmail.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, google.ErrAuth):
		return http.StatusUnauthorized
	case errors.As(err, &perr) && perr.Code >= 400 && perr.Code < 600:
		return perr.Code
	default:
		return http.StatusBadGateway
	}
}

func (a *API) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	a.logger.Warn("request failed",
		logging.RequestID(requestID(c)),
		"path", c.FullPath(),
		logging.Status(http.StatusText(status)),
		logging.Err(err))
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func abortWithMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
