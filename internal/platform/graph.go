package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopcast/social-publisher/internal/domain"
)

const maxResponseBody = 1 << 20

// GraphResponse is the raw outcome of a Graph API call. Adapters decide which
// status codes count as success.
type GraphResponse struct {
	StatusCode int
	Body       []byte
}

// GraphClient posts form-encoded requests to the Graph API.
// The base URL is injected from config so tests can point to a local mock.
type GraphClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGraphClient(baseURL string, timeout time.Duration) *GraphClient {
	return &GraphClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PostForm sends form to <base>/<path>. A non-nil error means no usable
// response arrived; it wraps domain.ErrRemote.
func (c *GraphClient) PostForm(ctx context.Context, path string, form url.Values) (*GraphResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %v", domain.ErrRemote, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrRemote, err)
	}
	return &GraphResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func remoteError(p domain.Platform, resp *GraphResponse) error {
	return &domain.RemoteError{Platform: p, StatusCode: resp.StatusCode, Body: string(resp.Body)}
}
