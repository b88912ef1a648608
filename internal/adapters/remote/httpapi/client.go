// Package httpapi provides a remote client for a JSON records API: each
// collection is served under {base}/collections/{collection}/records.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Client is an HTTP client for the records API. One client is shared by the
// per-kind adapters.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	propagator propagation.TextMapPropagator
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client)

// WithToken sets the bearer token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithPropagator sets the propagator that writes trace context into request
// headers. The global otel propagator is used when none is set.
func WithPropagator(p propagation.TextMapPropagator) ClientOption {
	return func(c *Client) {
		c.propagator = p
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithPageSize sets the number of records requested per list page
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient creates a new records API client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewError(errors.CodeConfiguration, fmt.Sprintf("invalid remote base URL %q", baseURL), err)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: DefaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ListRecords returns every record of a collection, following cursors.
func (c *Client) ListRecords(ctx context.Context, collection string) ([]Record, error) {
	var records []Record
	cursor := ""

	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		endpoint := c.baseURL + fmt.Sprintf(EndpointRecords, url.PathEscape(collection)) + "?" + q.Encode()

		var page ListResponse
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &page, false); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.NextCursor == "" {
			break
		}
		if page.NextCursor == cursor {
			return nil, errors.NewError(errors.CodeRemoteUnavailable,
				fmt.Sprintf("listing %s: cursor %q did not advance", collection, cursor), nil)
		}
		cursor = page.NextCursor
	}

	return records, nil
}

// CreateRecord creates a record and returns it as stored by the remote.
func (c *Client) CreateRecord(ctx context.Context, collection string, req *CreateRequest) (*Record, error) {
	endpoint := c.baseURL + fmt.Sprintf(EndpointRecords, url.PathEscape(collection))

	var rec Record
	if err := c.do(ctx, http.MethodPost, endpoint, req, &rec, true); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, errors.NewError(errors.CodeRecordPushFailed, "create response carried no record id", nil)
	}
	return &rec, nil
}

// UpdateRecord overwrites the properties of an existing record.
func (c *Client) UpdateRecord(ctx context.Context, collection, id string, req *UpdateRequest) error {
	endpoint := c.baseURL + fmt.Sprintf(EndpointRecord, url.PathEscape(collection), url.PathEscape(id))
	return c.do(ctx, http.MethodPatch, endpoint, req, nil, true)
}

// Ping checks if the remote API is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL+EndpointHealth, nil, nil, false)
}

// do executes one request. perRecord selects how 4xx responses are reported:
// as a rejection of the record or as a failure of the whole operation.
func (c *Client) do(ctx context.Context, method, endpoint string, in, out any, perRecord bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.NewError(errors.CodeRecordPushFailed, "marshaling request", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.textMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewError(errors.CodeRemoteUnavailable, fmt.Sprintf("%s %s", method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp, perRecord)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewError(errors.CodeRemoteUnavailable, "decoding response", err)
	}
	return nil
}

func (c *Client) textMapPropagator() propagation.TextMapPropagator {
	if c.propagator != nil {
		return c.propagator
	}
	return otel.GetTextMapPropagator()
}

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Unavailable reports whether the status means the remote as a whole cannot
// serve requests right now.
func (e *APIError) Unavailable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusForbidden,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	}
	return false
}

// parseError extracts error information from a failed response
func (c *Client) parseError(resp *http.Response, perRecord bool) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		apiErr.Message = "failed to read error body"
	} else {
		var errResp ErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			apiErr.Code = errResp.Error.Code
			apiErr.Message = errResp.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
	}

	code := errors.CodeRemoteUnavailable
	if perRecord && !apiErr.Unavailable() {
		code = errors.CodeRecordPushFailed
	}
	return errors.NewError(code, fmt.Sprintf("%s %s", resp.Request.Method, resp.Request.URL.Path), apiErr)
}
