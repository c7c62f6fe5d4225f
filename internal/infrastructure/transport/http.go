package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/qris-gateway/internal/domain/errors"
)

// Request is an outbound gateway call
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// Response is the raw gateway reply. Non-2xx statuses are not errors at this layer.
type Response struct {
	StatusCode int
	Body       []byte
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport sends a request and returns the raw response.
// Network failures and timeouts are returned as *errors.TransportError.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is a Transport backed by net/http with a per-request timeout
type HTTPTransport struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPTransport creates a transport. A zero timeout leaves only the context deadline.
func NewHTTPTransport(timeout time.Duration, logger *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// NewHTTPTransportWithClient wraps an existing client, e.g. httptest.Server.Client()
func NewHTTPTransportWithClient(client *http.Client, timeout time.Duration, logger *zap.Logger) *HTTPTransport {
	return &HTTPTransport{client: client, timeout: timeout, logger: logger}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &domainErrors.TransportError{Method: req.Method, URL: req.URL, Cause: err}
	}
	for key, value := range req.Header {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.logger.Warn("Gateway request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &domainErrors.TransportError{Method: req.Method, URL: req.URL, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domainErrors.TransportError{Method: req.Method, URL: req.URL, Cause: err}
	}

	t.logger.Debug("Gateway response received",
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
