package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mossy-p/bridge-signaling/internal/discovery"
	"github.com/mossy-p/bridge-signaling/internal/models"
)

// ErrRejected means the server refused the credentials.
var ErrRejected = errors.New("auth: credentials rejected")

// Client performs POST /auth against the rendezvous server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(serverURL string) (*Client, error) {
	base, err := discovery.HTTPBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) Authenticate(ctx context.Context, req models.AuthRequest) (models.AuthResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.AuthResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return models.AuthResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("auth: POST %s/auth: %w", c.BaseURL, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.AuthResponse{}, fmt.Errorf("%w: status %s", ErrRejected, resp.Status)
	case resp.StatusCode/100 != 2:
		return models.AuthResponse{}, fmt.Errorf("auth: status %s", resp.Status)
	}

	var out models.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.AuthResponse{}, fmt.Errorf("auth: decode response: %w", err)
	}
	if out.Token == "" {
		return models.AuthResponse{}, errors.New("auth: empty token in response")
	}
	return out, nil
}
