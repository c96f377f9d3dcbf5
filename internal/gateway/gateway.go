// Package gateway provides the API gateway that routes requests to handlers.
package gateway

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/middleware"
	"github.com/image-annotator/backend/internal/models"
)

// MaxBodyBytes caps request bodies forwarded to the handler. Annotation
// payloads are small; anything larger is rejected at the edge.
const MaxBodyBytes = 1 << 20

// Headers that describe a single hop and must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Gateway forwards annotation and image API calls to the handler role.
type Gateway struct {
	target     *url.URL
	logger     *zap.Logger
	httpClient *http.Client
}

// NewGateway creates a gateway forwarding to cfg.HandlerURL.
func NewGateway(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	target, err := url.Parse(cfg.HandlerURL)
	if err != nil || target.Host == "" {
		return nil, errors.New("invalid handler URL: " + cfg.HandlerURL)
	}

	return &Gateway{
		target: target,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// RegisterRoutes registers the gateway routes on the given router group.
func (g *Gateway) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Any("/annotations", g.forward)
	rg.Any("/annotations/*path", g.forward)
	rg.Any("/images/*path", g.forward)
}

// forward relays one request to the handler and copies back its response.
func (g *Gateway) forward(c *gin.Context) {
	requestID := middleware.GetRequestID(c)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(c, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return
		}
		g.logger.Error("Failed to read request body", zap.Error(err), zap.String("request_id", requestID))
		abort(c, http.StatusInternalServerError, "internal_error", "failed to read request body")
		return
	}

	outReq, err := g.outbound(c, body)
	if err != nil {
		g.logger.Error("Failed to create proxy request", zap.Error(err), zap.String("request_id", requestID))
		abort(c, http.StatusInternalServerError, "internal_error", "failed to create proxy request")
		return
	}

	g.logger.Debug("Proxying request",
		zap.String("method", outReq.Method),
		zap.String("target", outReq.URL.String()),
		zap.String("request_id", requestID),
	)

	resp, err := g.httpClient.Do(outReq)
	if err != nil {
		g.logger.Error("Failed to proxy request", zap.Error(err), zap.String("request_id", requestID))
		if errors.Is(err, syscall.ECONNREFUSED) {
			abort(c, http.StatusServiceUnavailable, "service_unavailable", "handler service is not available")
			return
		}
		abort(c, http.StatusBadGateway, "proxy_error", "failed to reach handler service")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.Error("Failed to read response body", zap.Error(err), zap.String("request_id", requestID))
		abort(c, http.StatusBadGateway, "proxy_error", "failed to read handler response")
		return
	}

	header := resp.Header.Clone()
	stripHopHeaders(header)
	for key, values := range header {
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
}

// outbound builds the request sent to the handler for c.
func (g *Gateway) outbound(c *gin.Context, body []byte) (*http.Request, error) {
	target := *g.target
	target.Path = c.Request.URL.Path
	target.RawQuery = c.Request.URL.RawQuery

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header = c.Request.Header.Clone()
	stripHopHeaders(req.Header)
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := middleware.GetRequestID(c); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}
	if ip, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		req.Header.Set("X-Forwarded-For", ip)
	}
	return req, nil
}

func stripHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: code, Message: message})
}
