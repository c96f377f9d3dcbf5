// Package middleware provides the gin middleware shared by the handler and
// gateway roles.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/auth"
	"github.com/image-annotator/backend/internal/models"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	actorKey     = "actor"
)

// RequestID tags every request with an id, reusing the caller's if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Authenticate resolves the bearer token into an actor. Requests without a
// token proceed anonymously; requests with a bad token are rejected.
// Banned users are treated as anonymous.
func Authenticate(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "bearer token malformed",
			})
			return
		}

		claims, err := auth.ParseToken(token, secret)
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err), zap.String("request_id", GetRequestID(c)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "invalid or expired token",
			})
			return
		}

		if actor := claims.Actor(); actor != nil {
			c.Set(actorKey, actor)
		}
		c.Next()
	}
}

// RequireActor rejects anonymous requests.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetActor(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "unauthorized",
				Message: "sign in to annotate",
			})
			return
		}
		c.Next()
	}
}

// GetActor returns the request's actor, or nil when anonymous.
func GetActor(c *gin.Context) *models.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*models.Actor)
	return actor
}

// SetActor stores actor on the request context.
func SetActor(c *gin.Context, actor *models.Actor) {
	c.Set(actorKey, actor)
}

var policy = bluemonday.StrictPolicy()

// Sanitize strips all markup from s.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}

// SanitizeJSON strips markup from the top-level string fields of JSON
// request bodies on write methods.
func SanitizeJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}
		if c.Request.Body == nil {
			c.Next()
			return
		}

		buf, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "invalid body",
			})
			return
		}

		var body map[string]any
		if len(bytes.TrimSpace(buf)) == 0 || json.Unmarshal(buf, &body) != nil {
			// Leave malformed bodies for the binder to report.
			c.Request.Body = io.NopCloser(bytes.NewReader(buf))
			c.Next()
			return
		}

		for k, v := range body {
			if str, ok := v.(string); ok {
				body[k] = Sanitize(str)
			}
		}

		clean, err := json.Marshal(body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "invalid body",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(clean))
		c.Request.ContentLength = int64(len(clean))

		c.Next()
	}
}

// CORS allows browser clients from origins. An empty list allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
