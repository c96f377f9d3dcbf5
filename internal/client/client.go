// Package client talks to the annotation HTTP API. Client implements
// store.Backend so an editing session can persist through a running server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/store"
)

const apiPrefix = "/api/v1"

// Client is an HTTP client for one annotation API, acting with one token.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential. Without one the client is
// anonymous.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetImage fetches an image's metadata.
func (c *Client) GetImage(ctx context.Context, id string) (*models.Image, error) {
	var resp models.ImageResponse
	if err := c.do(ctx, http.MethodGet, "/images/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Fetch lists an image's annotations in creation order.
func (c *Client) Fetch(ctx context.Context, imageID string) ([]models.Annotation, error) {
	var resp models.AnnotationsResponse
	if err := c.do(ctx, http.MethodGet, "/images/"+url.PathEscape(imageID)+"/annotations", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []models.Annotation{}
	}
	return resp.Data, nil
}

// Create persists a new annotation.
func (c *Client) Create(ctx context.Context, req models.CreateAnnotationRequest) (*models.Annotation, error) {
	var resp models.AnnotationResponse
	if err := c.do(ctx, http.MethodPost, "/annotations", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Update sends a partial update.
func (c *Client) Update(ctx context.Context, id string, req models.UpdateAnnotationRequest) (*models.Annotation, error) {
	var resp models.AnnotationResponse
	if err := c.do(ctx, http.MethodPatch, "/annotations/"+url.PathEscape(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Delete removes an annotation.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/annotations/"+url.PathEscape(id), nil, nil)
}

// Overlay downloads the rendered SVG overlay for an image.
func (c *Client) Overlay(ctx context.Context, imageID string, query url.Values) ([]byte, error) {
	path := "/images/" + url.PathEscape(imageID) + "/overlay.svg"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, path, nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// do performs one request. out may be nil, a *bytes.Buffer for raw bodies,
// or a value to decode JSON into.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", models.ErrTransport, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %w", models.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", models.ErrTransport, err)
	}

	c.logger.Debug("Request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, respBody)
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := dst.Write(respBody)
		return err
	default:
		if err := json.Unmarshal(respBody, dst); err != nil {
			return fmt.Errorf("%w: failed to decode response: %w", models.ErrTransport, err)
		}
		return nil
	}
}

// decodeError maps an API error response onto the models error kinds.
func decodeError(status int, body []byte) error {
	var apiErr models.ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusBadRequest:
		field, detail, ok := strings.Cut(msg, ": ")
		if !ok || strings.ContainsAny(field, " '\"") {
			field, detail = "", msg
		}
		return &models.ValidationError{Field: field, Message: detail}
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", models.ErrPermission, msg)
	case http.StatusNotFound:
		if msg == models.ErrImageNotFound.Error() {
			return models.ErrImageNotFound
		}
		return models.ErrNotFound
	default:
		return fmt.Errorf("%w: %d %s", models.ErrTransport, status, msg)
	}
}

var _ store.Backend = (*Client)(nil)

// IsKind reports whether err is one of the models error kinds, for callers
// that only want to surface known failures.
func IsKind(err error) bool {
	for _, kind := range []error{
		models.ErrValidation, models.ErrPermission, models.ErrNotFound,
		models.ErrImageNotFound, models.ErrTransport,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
