// Package middleware provides HTTP middleware for the IT console API.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxPayloadBytesKey = "maxPayloadBytes"

// PayloadLimitErrorResponse is the JSON body of a 413 response.
type PayloadLimitErrorResponse struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	MaxBytes int64  `json:"maxBytes"`
}

// PayloadLimit returns a middleware that caps the request body at maxBytes.
// Requests announcing a larger Content-Length are rejected up front; other
// bodies are wrapped with http.MaxBytesReader so that decoding fails once the
// limit is crossed (see PayloadTooLarge).
func PayloadLimit(maxBytes int64, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			logOversizedRequest(logger, c, c.Request.ContentLength, maxBytes)
			RespondPayloadTooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Set(maxPayloadBytesKey, maxBytes)

		c.Next()
	}
}

// PayloadTooLarge reports whether err came from reading past the body limit,
// and returns the limit that was applied.
func PayloadTooLarge(c *gin.Context, err error) (int64, bool) {
	var maxBytesErr *http.MaxBytesError
	if !errors.As(err, &maxBytesErr) {
		return 0, false
	}
	if v, ok := c.Get(maxPayloadBytesKey); ok {
		if limit, ok := v.(int64); ok {
			return limit, true
		}
	}
	return maxBytesErr.Limit, true
}

// RespondPayloadTooLarge aborts with a 413 Payload Too Large response.
func RespondPayloadTooLarge(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, PayloadLimitErrorResponse{
		Error:    "payload_too_large",
		Message:  "request body exceeds the maximum allowed size",
		MaxBytes: maxBytes,
	})
}

func logOversizedRequest(logger zerolog.Logger, c *gin.Context, attemptedSize, maxBytes int64) {
	logger.Warn().
		Str("clientIp", c.ClientIP()).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int64("attemptedSize", attemptedSize).
		Int64("maxBytes", maxBytes).
		Msg("oversized request rejected")
}
