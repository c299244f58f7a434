// Package client talks to the board REST backend. Responses are decoded
// into the wire types of pkg/api/v1, validated, and converted to models.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
	"github.com/lizmareco/tablero/internal/common/tracing"
	"github.com/lizmareco/tablero/internal/session"
	v1 "github.com/lizmareco/tablero/pkg/api/v1"
)

const serviceName = "board-backend"

// Client communicates with the backend over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger

	mu      sync.RWMutex
	session *session.Session
}

// New creates a backend client. sess may be nil until Login succeeds.
func New(cfg config.BackendConfig, sess *session.Session, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		logger:  log.WithComponent("backend-client"),
		session: sess,
	}
}

// Session returns the session whose token is sent with each request.
func (c *Client) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the session used for subsequent requests.
func (c *Client) SetSession(sess *session.Session) {
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
}

// BaseURL returns the backend root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends one request. in is JSON-encoded when non-nil; out receives the
// decoded body when non-nil. Non-2xx responses are mapped onto AppError
// codes; transport errors and timeouts become SERVICE_UNAVAILABLE.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s request: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	ctx, span := tracing.TraceBackendRequest(ctx, method, path)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if sess := c.Session(); sess.Valid() {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tracing.TraceBackendResponse(span, 0, err)
		if stderrors.Is(err, context.Canceled) {
			return err
		}
		return errors.ServiceUnavailable(serviceName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := readResponseBody(resp)
	if err != nil {
		tracing.TraceBackendResponse(span, resp.StatusCode, err)
		return errors.ServiceUnavailable(serviceName, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		appErr := errors.FromHTTPStatus(resp.StatusCode, errorMessage(respBody))
		tracing.TraceBackendResponse(span, resp.StatusCode, appErr)
		c.logger.WithContext(ctx).Debug("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return appErr
	}
	tracing.TraceBackendResponse(span, resp.StatusCode, nil)

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.ValidationError("payload", fmt.Sprintf("malformed %s %s response (body: %s): %v", method, path, truncateBody(respBody), err))
	}
	return nil
}

// invalid maps a validator failure onto a VALIDATION_ERROR.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	var fe *v1.FieldError
	if stderrors.As(err, &fe) {
		return errors.ValidationError(fe.Field, "failed "+fe.Rule)
	}
	return errors.ValidationError("payload", err.Error())
}

// errorMessage extracts the backend's error message, falling back to the
// raw body.
func errorMessage(body []byte) string {
	var eb v1.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Text() != "" {
		return eb.Text()
	}
	return truncateBody(body)
}

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

var errResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)

// readResponseBody reads the response body, refusing bodies over
// maxResponseBytes.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, errResponseTooLarge
	}
	return body, nil
}

// truncateBody truncates body for error messages to avoid huge logs
func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
