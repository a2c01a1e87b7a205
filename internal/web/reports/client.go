package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Response is what the report page shows after a request
type Response struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	// Body is the decoded JSON response, or the raw text when it is not JSON
	Body  any    `json:"body,omitempty"`
	Error string `json:"error,omitempty"`
}

// OK reports whether the remote API answered with a 2xx status
func (r Response) OK() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client posts report payloads to the external reporting API. It never
// retries.
type Client struct {
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout means requests are bounded
// only by the caller's context.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Post sends body to url with a bearer token. Transport failures are
// reported in Response.Error rather than returned, and a non-2xx status is
// not an error.
func (c *Client) Post(ctx context.Context, url, token string, body []byte) Response {
	resp := Response{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		resp.Error = fmt.Sprintf("Error: %v", err)
		return resp
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		resp.Error = fmt.Sprintf("Error: %v", err)
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	text, err := io.ReadAll(httpResp.Body)
	if err != nil {
		resp.Error = fmt.Sprintf("Error: %v", err)
		return resp
	}
	resp.Body = decodeBody(text)
	return resp
}

func decodeBody(text []byte) any {
	if len(bytes.TrimSpace(text)) == 0 {
		return string(text)
	}
	var v any
	if err := json.Unmarshal(text, &v); err != nil {
		return string(text)
	}
	return v
}
