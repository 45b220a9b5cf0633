// Package rooms is the room registry behind the rendezvous server.
package rooms

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/bridge-signaling/internal/models"
)

var ErrNotFound = errors.New("rooms: room not found")

// Store persists room metadata and membership. Implementations must be
// safe for concurrent use.
type Store interface {
	// Ensure returns the room, creating it when absent.
	Ensure(ctx context.Context, roomID string, maxGuests int) (models.RoomMetadata, error)
	Get(ctx context.Context, roomID string) (models.RoomMetadata, error)
	List(ctx context.Context) ([]models.RoomMetadata, error)
	Delete(ctx context.Context, roomID string) error

	// SetHost records the room's host. An empty peerID clears it.
	SetHost(ctx context.Context, roomID, peerID, hostType string) error
	AddPeer(ctx context.Context, roomID, peerID string) error
	RemovePeer(ctx context.Context, roomID, peerID string) error
	PeerCount(ctx context.Context, roomID string) (int, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*memoryRoom
	now   func() time.Time
}

type memoryRoom struct {
	meta  models.RoomMetadata
	peers map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*memoryRoom), now: time.Now}
}

func (m *Memory) Ensure(ctx context.Context, roomID string, maxGuests int) (models.RoomMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		return r.meta, nil
	}
	r := &memoryRoom{
		meta:  models.RoomMetadata{ID: roomID, CreatedAt: m.now().UTC(), MaxGuests: maxGuests},
		peers: make(map[string]struct{}),
	}
	m.rooms[roomID] = r
	return r.meta, nil
}

func (m *Memory) Get(ctx context.Context, roomID string) (models.RoomMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return models.RoomMetadata{}, ErrNotFound
	}
	return r.meta, nil
}

func (m *Memory) List(ctx context.Context) ([]models.RoomMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RoomMetadata, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, roomID)
	return nil
}

func (m *Memory) SetHost(ctx context.Context, roomID, peerID, hostType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.meta.HostPeer = peerID
	r.meta.HostType = hostType
	if peerID == "" {
		r.meta.HostType = ""
	}
	return nil
}

func (m *Memory) AddPeer(ctx context.Context, roomID, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	r.peers[peerID] = struct{}{}
	return nil
}

func (m *Memory) RemovePeer(ctx context.Context, roomID, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	delete(r.peers, peerID)
	return nil
}

func (m *Memory) PeerCount(ctx context.Context, roomID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return 0, ErrNotFound
	}
	return len(r.peers), nil
}

// Info converts stored metadata into a discovery entry. Guests are every
// member except the host.
func Info(meta models.RoomMetadata, members int) models.RoomInfo {
	guests := members
	if meta.HostPeer != "" && guests > 0 {
		guests--
	}
	return models.RoomInfo{
		RoomID:     meta.ID,
		HostType:   meta.HostType,
		CreatedAt:  meta.CreatedAt.UnixMilli(),
		GuestCount: guests,
	}
}
