// Package discovery lists the rooms a rendezvous server currently hosts and
// decodes the room invites shown as QR codes.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/roomcode"
)

var ErrInvalidInvite = errors.New("discovery: invalid room invite")

// HTTPBaseURL maps a signaling address to the server's HTTP origin:
// ws becomes http, wss becomes https, and the path is dropped.
func HTTPBaseURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", fmt.Errorf("discovery: parse %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("discovery: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("discovery: missing host in %q", serverURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient accepts either the signaling ws(s) address or the HTTP origin.
func NewClient(serverURL string) (*Client, error) {
	base, err := HTTPBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// ListRooms fetches GET /rooms.
func (c *Client) ListRooms(ctx context.Context) (models.RoomList, error) {
	var list models.RoomList
	if err := c.getJSON(ctx, c.BaseURL+"/rooms", &list); err != nil {
		return models.RoomList{}, err
	}
	if list.Rooms == nil {
		list.Rooms = []models.RoomInfo{}
	}
	return list, nil
}

// Room fetches GET /rooms/:roomId. The bool is false when the room does not
// exist.
func (c *Client) Room(ctx context.Context, roomID string) (models.RoomInfo, bool, error) {
	var info models.RoomInfo
	err := c.getJSON(ctx, c.BaseURL+"/rooms/"+url.PathEscape(roomID), &info)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return models.RoomInfo{}, false, nil
	}
	if err != nil {
		return models.RoomInfo{}, false, err
	}
	return info, true, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discovery: GET %s: status %s", e.URL, e.Status)
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("discovery: GET %s: %w", url, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode/100 != 2 {
		return &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("discovery: decode %s: %w", url, err)
	}
	return nil
}

// ParseRoomInvite decodes a QR payload. A bare room code is accepted as
// well as the JSON form {roomId, serverUrl, timestamp}.
func ParseRoomInvite(payload string) (models.RoomInvite, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return models.RoomInvite{}, ErrInvalidInvite
	}

	if !strings.HasPrefix(payload, "{") {
		code := roomcode.Normalize(payload)
		if !roomcode.Valid(code) {
			return models.RoomInvite{}, fmt.Errorf("%w: %q is not a room code", ErrInvalidInvite, payload)
		}
		return models.RoomInvite{RoomID: code}, nil
	}

	var inv models.RoomInvite
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return models.RoomInvite{}, fmt.Errorf("%w: %v", ErrInvalidInvite, err)
	}
	if inv.RoomID == "" {
		return models.RoomInvite{}, fmt.Errorf("%w: missing roomId", ErrInvalidInvite)
	}
	if inv.ServerURL != "" {
		if _, err := url.Parse(inv.ServerURL); err != nil {
			return models.RoomInvite{}, fmt.Errorf("%w: serverUrl: %v", ErrInvalidInvite, err)
		}
	}
	return inv, nil
}

// NewRoomInvite builds the payload a host renders as a QR code.
func NewRoomInvite(roomID, serverURL string, now time.Time) models.RoomInvite {
	return models.RoomInvite{
		RoomID:    roomID,
		ServerURL: serverURL,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
