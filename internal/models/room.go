package models

import "time"

// RoomMetadata stores information about a room
type RoomMetadata struct {
	ID        string    `json:"id"`
	HostType  string    `json:"hostType"` // client type of the registered host, empty until one joins
	HostPeer  string    `json:"hostPeer"` // peer id of the host
	CreatedAt time.Time `json:"createdAt"`
	MaxGuests int       `json:"maxGuests"`
}

// RoomInfo is one entry of the discovery listing.
type RoomInfo struct {
	RoomID     string `json:"roomId"`
	HostType   string `json:"hostType"`
	CreatedAt  int64  `json:"createdAt"` // unix milliseconds
	GuestCount int    `json:"guestCount"`
}

// RoomList is the response body of GET /rooms.
type RoomList struct {
	Rooms     []RoomInfo `json:"rooms"`
	Timestamp string     `json:"timestamp"`
}

// RoomInvite is the payload encoded in a room QR code.
type RoomInvite struct {
	RoomID    string `json:"roomId"`
	ServerURL string `json:"serverUrl,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AuthRequest is the credential exchange request body.
type AuthRequest struct {
	PeerID     string `json:"peerId" binding:"required"`
	ClientType string `json:"clientType" binding:"required,oneof=mobile host"`
	AuthKey    string `json:"authKey" binding:"required"`
}

// AuthResponse carries the issued token.
type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}
