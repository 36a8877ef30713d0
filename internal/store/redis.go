package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Huddle/internal/domain"
)

// roomTTL bounds how long an abandoned room can linger if the process dies
// before closing it.
const roomTTL = 24 * time.Hour

// RedisStore keeps rooms and the participant ledger in Redis. Room metadata
// lives under room:{id}, participants in a hash under room:{id}:participants,
// and a user -> participant index under room:{id}:users.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func roomKey(id domain.RoomID) string         { return "room:" + string(id) }
func participantsKey(id domain.RoomID) string { return "room:" + string(id) + ":participants" }
func usersKey(id domain.RoomID) string        { return "room:" + string(id) + ":users" }
func openRoomsKey() string                    { return "rooms:open" }

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) CreateRoom(ctx context.Context, createdBy string) (*domain.Room, error) {
	room := domain.NewRoom(createdBy)
	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.ID), data, roomTTL)
		pipe.SAdd(ctx, openRoomsKey(), string(room.ID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *RedisStore) getRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("room lookup: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("room decode: %w", err)
	}
	return &room, nil
}

func (s *RedisStore) RoomIsOpen(ctx context.Context, id domain.RoomID) (bool, error) {
	room, err := s.getRoom(ctx, id)
	if err == ErrRoomNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return room.Open(), nil
}

func (s *RedisStore) CloseRoom(ctx context.Context, id domain.RoomID) error {
	room, err := s.getRoom(ctx, id)
	if err == ErrRoomNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !room.Open() {
		return nil
	}
	room.Status = domain.RoomClosed
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(id), data, roomTTL)
		pipe.SRem(ctx, openRoomsKey(), string(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordJoin(ctx context.Context, p *domain.Participant) error {
	// Watch the user index so two concurrent joins by the same user cannot
	// both insert; the loser retries once.
	join := func(tx *redis.Tx) error {
		open, err := s.RoomIsOpen(ctx, p.RoomID)
		if err != nil {
			return err
		}
		if !open {
			return ErrRoomNotOpen
		}

		cp := *p
		cp.Status = domain.ParticipantActive
		cp.JoinedAt = time.Now().UTC()
		cp.LeftAt = nil

		var priorID string
		if cp.UserID != "" {
			priorID, err = tx.HGet(ctx, usersKey(cp.RoomID), string(cp.UserID)).Result()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("user index: %w", err)
			}
		}

		data, err := json.Marshal(&cp)
		if err != nil {
			return fmt.Errorf("participant encode: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if priorID != "" {
				pipe.HDel(ctx, participantsKey(cp.RoomID), priorID)
			}
			pipe.HSet(ctx, participantsKey(cp.RoomID), string(cp.ID), data)
			if cp.UserID != "" {
				pipe.HSet(ctx, usersKey(cp.RoomID), string(cp.UserID), string(cp.ID))
			}
			pipe.Expire(ctx, participantsKey(cp.RoomID), roomTTL)
			pipe.Expire(ctx, usersKey(cp.RoomID), roomTTL)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, join, usersKey(p.RoomID))
	if err == redis.TxFailedErr {
		err = s.client.Watch(ctx, join, usersKey(p.RoomID))
	}
	if err == ErrRoomNotOpen {
		return err
	}
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordLeave(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) error {
	// Watch the hash so a concurrent rejoin that rekeys this record cannot
	// lose to a stale read here; re-inserting the deleted entry would leave
	// a ghost "left" row behind.
	leave := func(tx *redis.Tx) error {
		data, err := tx.HGet(ctx, participantsKey(roomID), string(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				return nil
			}
			return fmt.Errorf("record leave: %w", err)
		}
		var p domain.Participant
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("participant decode: %w", err)
		}
		if p.Status == domain.ParticipantLeft {
			return nil
		}
		now := time.Now().UTC()
		p.Status = domain.ParticipantLeft
		p.LeftAt = &now
		updated, err := json.Marshal(&p)
		if err != nil {
			return fmt.Errorf("participant encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, participantsKey(roomID), string(id), updated)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, leave, participantsKey(roomID))
	if err == redis.TxFailedErr {
		err = s.client.Watch(ctx, leave, participantsKey(roomID))
	}
	if err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	return nil
}

func (s *RedisStore) participants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	entries, err := s.client.HGetAll(ctx, participantsKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(entries))
	for _, raw := range entries {
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("participant decode: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisStore) ActiveCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	all, err := s.participants(ctx, roomID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range all {
		if p.Status == domain.ParticipantActive {
			n++
		}
	}
	return n, nil
}

func (s *RedisStore) ActiveParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	all, err := s.participants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(all))
	for _, p := range all {
		if p.Status == domain.ParticipantActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *RedisStore) ListOpenRooms(ctx context.Context) ([]RoomInfo, error) {
	ids, err := s.client.SMembers(ctx, openRoomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := make([]RoomInfo, 0, len(ids))
	for _, id := range ids {
		room, err := s.getRoom(ctx, domain.RoomID(id))
		if err == ErrRoomNotFound {
			// Metadata expired; drop the stale index entry.
			s.client.SRem(ctx, openRoomsKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !room.Open() {
			continue
		}
		count, err := s.ActiveCount(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoomInfo{
			RoomID:           room.ID,
			Status:           room.Status,
			ParticipantCount: count,
			CreatedAt:        room.CreatedAt,
			CreatedBy:        room.CreatedBy,
		})
	}
	return out, nil
}

func (s *RedisStore) RoomSnapshot(ctx context.Context, id domain.RoomID) (*RoomSnapshot, error) {
	room, err := s.getRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.ActiveParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RoomSnapshot{Room: *room, Participants: participants}, nil
}
