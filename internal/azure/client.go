// Package azure talks to the Azure identity platform and the management
// activity-log API.
//
// Key constraints:
//   - One bearer token per run; it is never refreshed.
//   - Results are paged: a page carries "value" and, except for the last one,
//     a fully-qualified "nextLink" that is requested verbatim.
//   - One attempt per page, no retry.
package azure

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

	"go.uber.org/zap"

	"github.com/fabriziosalmi/activitylogs/internal/config"
)

const (
	defaultBaseURL   = "https://management.azure.com"
	activityLogsPath = "/providers/Microsoft.Insights/eventtypes/management/values"

	// Error bodies are only read for their code/message.
	maxErrorBody = 64 << 10
	maxPageBody  = 256 << 20
)

// Page is one decoded response from the activity-log endpoint. Records are
// kept as raw JSON so they pass through untouched.
type Page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"nextLink,omitempty"`
}

// HasNext reports whether the provider pointed at another page.
func (p *Page) HasNext() bool { return p.NextLink != "" }

// errorBody accepts both the flat {"code","message"} shape and the
// {"error":{"code","message"}} envelope ARM normally returns.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a management API client.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.AzureConfig, log *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		log:        log,
	}
}

// ActivityLogsURL is the tenant-level management events endpoint.
func (c *Client) ActivityLogsURL() string {
	return c.baseURL + activityLogsPath
}

// APIVersion is the api-version sent with the first request.
func (c *Client) APIVersion() string {
	return c.apiVersion
}

// FetchPage issues one authenticated GET against rawURL. query is merged into
// the URL's existing query string; pass nil for nextLink URLs, which already
// carry everything they need. A non-200 status yields *APIError, anything
// else that prevents a decoded Page yields *TransportError.
func (c *Client) FetchPage(ctx context.Context, rawURL, token string, query url.Values) (*Page, error) {
	target, err := mergeQuery(rawURL, query)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Op: "parse url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Op: "new request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.log.Info("issuing request", zap.String("url", rawURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("request failed", zap.String("url", rawURL), zap.Error(err))
		return nil, &TransportError{URL: rawURL, Op: "do request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(rawURL, resp)
	}

	page, err := decodePage(resp.Body)
	if err != nil {
		c.log.Error("response body could not be decoded", zap.String("url", rawURL), zap.Error(err))
		return nil, &TransportError{URL: rawURL, Op: "decode response", Err: err}
	}
	return page, nil
}

// decodePage accepts exactly one JSON object. A null, a non-object or
// anything after the object is rejected rather than read as a last page.
func decodePage(r io.Reader) (*Page, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxPageBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxPageBody {
		return nil, fmt.Errorf("body exceeds %d bytes", maxPageBody)
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("body is not a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var page Page
	if err := dec.Decode(&page); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after page object")
	}
	return &page, nil
}

func (c *Client) apiError(rawURL string, resp *http.Response) *APIError {
	apiErr := &APIError{URL: rawURL, StatusCode: resp.StatusCode}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if readErr == nil && json.Unmarshal(body, &eb) == nil {
		apiErr.Code, apiErr.Message = eb.Code, eb.Message
		if eb.Error != nil && apiErr.Code == "" {
			apiErr.Code, apiErr.Message = eb.Error.Code, eb.Error.Message
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}

	c.log.Error("error encountered querying azure api",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.String("code", apiErr.Code),
		zap.String("message", apiErr.Message),
	)
	return apiErr
}

func mergeQuery(rawURL string, query url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("not an absolute url")
	}
	if len(query) == 0 {
		return rawURL, nil
	}
	q := u.Query()
	for k, vs := range query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
