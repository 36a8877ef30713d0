package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dkeye/Huddle/internal/domain"
)

// SQLiteStore is the single-file persistent backend, handy for single-node
// deployments without an external database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and bootstraps the schema.
// If dbPath is empty, defaults to "./data/huddle.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/huddle.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		room_id    TEXT PRIMARY KEY,
		status     TEXT NOT NULL DEFAULT 'open',
		created_at DATETIME NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS participants (
		participant_id TEXT PRIMARY KEY,
		room_id        TEXT NOT NULL REFERENCES rooms(room_id) ON DELETE CASCADE,
		user_id        TEXT NOT NULL DEFAULT '',
		display_name   TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'active',
		joined_at      DATETIME NOT NULL,
		left_at        DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_participants_room_status ON participants(room_id, status);
	CREATE INDEX IF NOT EXISTS idx_participants_room_user ON participants(room_id, user_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) CreateRoom(ctx context.Context, createdBy string) (*domain.Room, error) {
	room := domain.NewRoom(createdBy)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, status, created_at, created_by)
		VALUES (?, ?, ?, ?)
	`, string(room.ID), string(room.Status), room.CreatedAt, room.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) RoomIsOpen(ctx context.Context, id domain.RoomID) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM rooms WHERE room_id = ?
	`, string(id)).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("room lookup: %w", err)
	}
	return status == string(domain.RoomOpen), nil
}

func (s *SQLiteStore) CloseRoom(ctx context.Context, id domain.RoomID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET status = 'closed' WHERE room_id = ? AND status = 'open'
	`, string(id))
	if err != nil {
		return fmt.Errorf("close room: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordJoin(ctx context.Context, p *domain.Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM rooms WHERE room_id = ?
	`, string(p.RoomID)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotOpen
	}
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	if status != string(domain.RoomOpen) {
		return ErrRoomNotOpen
	}

	now := time.Now().UTC()
	if p.UserID != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE participants
			SET participant_id = ?, display_name = ?, status = 'active',
			    joined_at = ?, left_at = NULL
			WHERE room_id = ? AND user_id = ?
		`, string(p.ID), p.DisplayName, now, string(p.RoomID), string(p.UserID))
		if err != nil {
			return fmt.Errorf("record join: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return tx.Commit()
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants (participant_id, room_id, user_id, display_name, status, joined_at)
		VALUES (?, ?, ?, ?, 'active', ?)
	`, string(p.ID), string(p.RoomID), string(p.UserID), p.DisplayName, now)
	if err != nil {
		return fmt.Errorf("record join: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecordLeave(ctx context.Context, roomID domain.RoomID, id domain.ParticipantID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE participants SET status = 'left', left_at = ?
		WHERE room_id = ? AND participant_id = ? AND status = 'active'
	`, time.Now().UTC(), string(roomID), string(id))
	if err != nil {
		return fmt.Errorf("record leave: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveCount(ctx context.Context, roomID domain.RoomID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants WHERE room_id = ? AND status = 'active'
	`, string(roomID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("active count: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ActiveParticipants(ctx context.Context, roomID domain.RoomID) ([]domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT participant_id, room_id, user_id, display_name, status, joined_at, left_at
		FROM participants WHERE room_id = ? AND status = 'active'
	`, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("active participants: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		var pid, rid, uid, status string
		var leftAt sql.NullTime
		if err := rows.Scan(&pid, &rid, &uid, &p.DisplayName, &status, &p.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.ID = domain.ParticipantID(pid)
		p.RoomID = domain.RoomID(rid)
		p.UserID = domain.UserID(uid)
		p.Status = domain.ParticipantStatus(status)
		if leftAt.Valid {
			t := leftAt.Time
			p.LeftAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListOpenRooms(ctx context.Context) ([]RoomInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func (s *SQLiteStore) RoomSnapshot(ctx context.Context, id domain.RoomID) (*RoomSnapshot, error) {
	snap := &RoomSnapshot{}
	var roomID, status string
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, status, created_at, created_by FROM rooms WHERE room_id = ?
	`, string(id)).Scan(&roomID, &status, &snap.Room.CreatedAt, &snap.Room.CreatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
