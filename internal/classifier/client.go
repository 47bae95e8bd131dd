package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/config"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/version"
)

const (
	detectPath = "/detect_drowsiness"
	healthPath = "/health"

	// jpegDataURLPrefix prefixes the base64 frame in the request body.
	jpegDataURLPrefix = "data:image/jpeg;base64,"

	// maxResponseSize bounds the response body read into memory.
	maxResponseSize = 1 << 20
)

var (
	// errInvalidFaceBox is reported when the face box has negative extent.
	errInvalidFaceBox = errors.New("invalid face box")
	// errEmptyFrame is returned when Detect gets a frame without data.
	errEmptyFrame = errors.New("frame has no image data")
	// errUnhealthy is returned by Health for a non-ok status body.
	errUnhealthy = errors.New("classifier is unhealthy")
)

// Client talks to the remote classifier over HTTP.
type Client struct {
	// baseURL is the classifier endpoint without trailing slash.
	baseURL string
	// httpClient performs the requests.
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// New creates a client for the classifier at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse classifier url: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("parse classifier url: unsupported scheme %q", parsed.Scheme)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: config.DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the classifier endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Detect sends one frame and returns the classifier sample.
// Errors are either *TransportError or *ApplicationError.
func (c *Client) Detect(ctx context.Context, frame camera.Frame) (*detection.Sample, error) {
	if len(frame.Data) == 0 {
		return nil, &TransportError{Cause: errEmptyFrame}
	}

	body, err := json.Marshal(detectRequest{
		Image: jpegDataURLPrefix + base64.StdEncoding.EncodeToString(frame.Data),
	})
	if err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+detectPath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, payload, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var response detectResponse

	if err = json.Unmarshal(payload, &response); err != nil {
		if !isSuccess(status) {
			return nil, newApplicationError(status, "")
		}

		return nil, &TransportError{Cause: fmt.Errorf("decode response: %w", err)}
	}

	// An empty error string means no error.
	hasError := response.Error != nil && *response.Error != ""

	if hasError || !isSuccess(status) {
		var message string
		if hasError {
			message = *response.Error
		}

		return nil, newApplicationError(status, message)
	}

	sample, err := response.toSample()
	if err != nil {
		return nil, newApplicationError(status, err.Error())
	}

	return sample, nil
}

// Health calls GET /health and expects {"status":"ok"}.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return &TransportError{Cause: fmt.Errorf("create request: %w", err)}
	}

	status, payload, err := c.do(req)
	if err != nil {
		return err
	}

	if !isSuccess(status) {
		return newApplicationError(status, "")
	}

	var response healthResponse
	if err = json.Unmarshal(payload, &response); err != nil {
		return &TransportError{Cause: fmt.Errorf("decode response: %w", err)}
	}

	if response.Status != "ok" {
		return newApplicationError(status, fmt.Sprintf("%s: %q", errUnhealthy, response.Status))
	}

	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Cause: err}
	}

	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &TransportError{Cause: fmt.Errorf("read response: %w", err)}
	}

	return resp.StatusCode, payload, nil
}
