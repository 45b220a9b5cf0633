// Package redis keeps room state in Redis so several server instances can
// share a registry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

const roomPrefix = "room:"

// Store implements rooms.Store. Each room is a JSON metadata key plus a set
// of member peer ids, both expiring after TTL.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

var _ rooms.Store = (*Store)(nil)

func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

func roomKey(id string) string  { return roomPrefix + id }
func peersKey(id string) string { return roomPrefix + id + ":peers" }

func (s *Store) Ensure(ctx context.Context, roomID string, maxGuests int) (models.RoomMetadata, error) {
	meta := models.RoomMetadata{ID: roomID, CreatedAt: s.now().UTC(), MaxGuests: maxGuests}
	data, err := json.Marshal(meta)
	if err != nil {
		return models.RoomMetadata{}, err
	}

	created, err := s.client.SetNX(ctx, roomKey(roomID), data, s.ttl).Result()
	if err != nil {
		return models.RoomMetadata{}, fmt.Errorf("failed to create room: %w", err)
	}
	if created {
		return meta, nil
	}
	return s.Get(ctx, roomID)
}

func (s *Store) Get(ctx context.Context, roomID string) (models.RoomMetadata, error) {
	data, err := s.client.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RoomMetadata{}, rooms.ErrNotFound
	}
	if err != nil {
		return models.RoomMetadata{}, fmt.Errorf("failed to get room: %w", err)
	}

	var meta models.RoomMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return models.RoomMetadata{}, fmt.Errorf("failed to parse room metadata: %w", err)
	}
	return meta, nil
}

func (s *Store) List(ctx context.Context) ([]models.RoomMetadata, error) {
	var out []models.RoomMetadata
	iter := s.client.Scan(ctx, 0, roomPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":peers") {
			continue
		}
		meta, err := s.Get(ctx, strings.TrimPrefix(key, roomPrefix))
		if errors.Is(err, rooms.ErrNotFound) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan rooms: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, roomID string) error {
	n, err := s.client.Del(ctx, roomKey(roomID), peersKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if n == 0 {
		return rooms.ErrNotFound
	}
	return nil
}

func (s *Store) SetHost(ctx context.Context, roomID, peerID, hostType string) error {
	meta, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	meta.HostPeer = peerID
	meta.HostType = hostType
	if peerID == "" {
		meta.HostType = ""
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, roomKey(roomID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	return nil
}

func (s *Store) AddPeer(ctx context.Context, roomID, peerID string) error {
	exists, err := s.client.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check room: %w", err)
	}
	if exists == 0 {
		return rooms.ErrNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, peersKey(roomID), peerID)
	pipe.Expire(ctx, peersKey(roomID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add peer: %w", err)
	}
	return nil
}

func (s *Store) RemovePeer(ctx context.Context, roomID, peerID string) error {
	if err := s.client.SRem(ctx, peersKey(roomID), peerID).Err(); err != nil {
		return fmt.Errorf("failed to remove peer: %w", err)
	}
	return nil
}

func (s *Store) PeerCount(ctx context.Context, roomID string) (int, error) {
	exists, err := s.client.Exists(ctx, roomKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check room: %w", err)
	}
	if exists == 0 {
		return 0, rooms.ErrNotFound
	}
	n, err := s.client.SCard(ctx, peersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count peers: %w", err)
	}
	return int(n), nil
}
