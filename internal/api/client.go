package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request is one outbound call against an actor resource. There is no body;
// everything travels in the path and the query.
type Request struct {
	Method   string
	Identity string
	Query    url.Values
	Seq      uint64
}

// Path returns the resource path relative to the versioned base URL.
func (r Request) Path() string {
	return "/actors/" + url.PathEscape(r.Identity)
}

// Target returns the full request URL under base.
func (r Request) Target(base string) string {
	target := strings.TrimRight(base, "/") + r.Path()
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}
	return target
}

func (r Request) String() string {
	return r.Method + " " + r.Path()
}

// BaseURL builds the versioned service root, e.g. http://10.0.0.179:9090/v1.0.
// A host that already carries a scheme is used as is.
func BaseURL(host string, port int, version string) string {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s:%d/v%s", strings.TrimRight(host, "/"), port, version)
}

// Client handles communication with the actor coordination service.
type Client struct {
	baseURL    string
	httpClient *resty.Client
}

// New creates a new API client. A zero timeout leaves timeouts to the
// transport. Failed requests are never retried.
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	hc := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0)
	if timeout > 0 {
		hc.SetTimeout(timeout)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: hc,
	}
}

// BaseURL returns the versioned service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes req. Any non-2xx response is an error.
func (c *Client) Do(ctx context.Context, req Request) error {
	switch req.Method {
	case http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("unsupported method %q", req.Method)
	}
	if req.Identity == "" {
		return fmt.Errorf("%s: no identity", req.Method)
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParamsFromValues(req.Query).
		Execute(req.Method, req.Path())
	if err != nil {
		return fmt.Errorf("%s request failed: %w", req, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return fmt.Errorf("%s returned status %d", req, resp.StatusCode())
	}
	return nil
}

// Healthcheck checks if the service is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(healthcheckURL(c.baseURL))
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode())
	}
	return nil
}

// healthcheckURL strips the version segment so the probe hits the host root.
func healthcheckURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "/healthcheck"
	}
	u.Path = "/healthcheck"
	u.RawQuery = ""
	return u.String()
}
