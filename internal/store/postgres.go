package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkeye/Huddle/internal/domain"
)

// PostgresStore is the production persistent backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and bootstraps the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		room_id    UUID PRIMARY KEY,
		status     TEXT NOT NULL DEFAULT 'open',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS participants (
		participant_id UUID PRIMARY KEY,
		room_id        UUID NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
		user_id        TEXT NOT NULL DEFAULT '',
		display_name   TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'active',
		joined_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		left_at        TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_participants_room_status ON participants(room_id, status);
	CREATE INDEX IF NOT EXISTS idx_participants_room_user ON participants(room_id, user_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateRoom(ctx context.Context, createdBy string) (*domain.Room, error) {
	room := domain.NewRoom(createdBy)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (room_id, status, created_at, created_by)
		VALUES ($1, $2, $3, $4)
	`, string(room.ID), string(room.Status), room.CreatedAt, room.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *PostgresStore) RoomIsOpen(ctx context.Context, id domain.RoomID) (bool, error) {
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT status FROM rooms WHERE room_id = $1
	`, string(id)).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("room lookup: %w", err)
	}
	return status == string(domain.RoomOpen), nil
}

func (s *PostgresStore) CloseRoom(ctx context.Context, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rooms SET status = 'closed' WHERE room_id = $1 AND status = 'open'
	`, string(id))
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordJoin(ctx context.Context, p *domain.Participant) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `
		SELECT status FROM rooms WHERE room_id = $1 FOR UPDATE
	`, string(p.RoomID)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRoomNotOpen
	}
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	if status != string(domain.RoomOpen) {
		return ErrRoomNotOpen
	}

	// A returning user takes over their prior record: the row is rekeyed to
	// the new participant identity rather than duplicated.
	if p.UserID != "" {
		tag, err := tx.Exec(ctx, `
			UPDATE participants
			SET participant_id = $1, display_name = $2, status = 'active',
			    joined_at = now(), left_at = NULL
			WHERE room_id = $3 AND user_id = $4
		`, string(p.ID), p.DisplayName, string(p.RoomID), string(p.UserID))
		if err != nil {
			return fmt.Errorf("record join: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return tx.Commit(ctx)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO participants (participant_id, room_id, user_id, display_name, status, joined_at)
		VALUES ($1, $2, $3, $4, 'active', now())
	`, string(p.ID), string(p.RoomID), string(p.UserID), p.DisplayName)
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) RecordLeave(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE participants SET status = 'left', left_at = now()
		WHERE room_id = $1 AND participant_id = $2 AND status = 'active'
	`, string(roomID), string(id))
	if err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM participants WHERE room_id = $1 AND status = 'active'
	`, string(roomID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("active count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ActiveParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant_id, room_id, user_id, display_name, status, joined_at, left_at
		FROM participants WHERE room_id = $1 AND status = 'active'
	`, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("active participants: %w", err)
	}
	defer rows.Close()
	return scanParticipants(rows)
}

func (s *PostgresStore) ListOpenRooms(ctx context.Context) ([]RoomInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.room_id, r.status, r.created_at, r.created_by,
		       (SELECT COUNT(*) FROM participants p
		        WHERE p.room_id = r.room_id AND p.status = 'active')
		FROM rooms r WHERE r.status = 'open'
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	out := make([]RoomInfo, 0)
	for rows.Next() {
		var info RoomInfo
		var roomID, status string
		if err := rows.Scan(&roomID, &status, &info.CreatedAt, &info.CreatedBy, &info.ParticipantCount); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		info.RoomID = domain.RoomID(roomID)
		info.Status = domain.RoomStatus(status)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RoomSnapshot(ctx context.Context, id domain.RoomID) (*RoomSnapshot, error) {
	snap := &RoomSnapshot{}
	var roomID, status string
	err := s.pool.QueryRow(ctx, `
		SELECT room_id, status, created_at, created_by FROM rooms WHERE room_id = $1
	`, string(id)).Scan(&roomID, &status, &snap.Room.CreatedAt, &snap.Room.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("room snapshot: %w", err)
	}
	snap.Room.ID = domain.RoomID(roomID)
	snap.Room.Status = domain.RoomStatus(status)

	snap.Participants, err = s.ActiveParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func scanParticipants(rows pgx.Rows) ([]domain.Participant, error) {
	out := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		var pid, rid, uid, status string
		if err := rows.Scan(&pid, &rid, &uid, &p.DisplayName, &status, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.ID = domain.ParticipantID(pid)
		p.RoomID = domain.RoomID(rid)
		p.UserID = domain.UserID(uid)
		p.Status = domain.ParticipantStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}
