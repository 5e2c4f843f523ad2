package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/notification"
	"whiteboardAPI/internal/types/element"
)

const whiteboardSchema = `
CREATE TABLE IF NOT EXISTS whiteboard_sessions (
	id          TEXT PRIMARY KEY,
	host_id     TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	moderation  JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS whiteboard_elements (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES whiteboard_sessions(id) ON DELETE CASCADE,
	version     BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	data        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_whiteboard_elements_session
	ON whiteboard_elements (session_id, created_at);

CREATE TABLE IF NOT EXISTS device_tokens (
	token       TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	platform    TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_device_tokens_user ON device_tokens (user_id);
`

// PostgresRepository stores sessions, elements and moderator device tokens.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ notification.DeviceStore = (*PostgresRepository)(nil)

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the tables on first start.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, whiteboardSchema); err != nil {
		return fmt.Errorf("create whiteboard schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveSession(ctx context.Context, info SessionInfo) error {
	moderation, err := json.Marshal(info.Moderation)
	if err != nil {
		return fmt.Errorf("encode moderation config: %w", err)
	}

	query := `
		INSERT INTO whiteboard_sessions (id, host_id, title, moderation, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, moderation = EXCLUDED.moderation
	`
	if _, err := r.db.Exec(ctx, query, info.ID, info.HostID, info.Title, moderation, info.CreatedAt); err != nil {
		return fmt.Errorf("save session %s: %w", info.ID, err)
	}
	return nil
}

func (r *PostgresRepository) LoadSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	query := `
		SELECT id, host_id, title, moderation, created_at
		FROM whiteboard_sessions
		WHERE id = $1
	`
	var (
		info       SessionInfo
		moderation []byte
	)
	err := r.db.QueryRow(ctx, query, sessionID).Scan(&info.ID, &info.HostID, &info.Title, &moderation, &info.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionInfo{}, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	if err != nil {
		return SessionInfo{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(moderation, &info.Moderation); err != nil {
		return SessionInfo{}, fmt.Errorf("decode moderation config of %s: %w", sessionID, err)
	}
	return info, nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	query := `
		SELECT id, host_id, title, moderation, created_at
		FROM whiteboard_sessions
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]SessionInfo, 0)
	for rows.Next() {
		var (
			info       SessionInfo
			moderation []byte
		)
		if err := rows.Scan(&info.ID, &info.HostID, &info.Title, &moderation, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(moderation, &info.Moderation); err != nil {
			return nil, fmt.Errorf("decode moderation config of %s: %w", info.ID, err)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// SaveElement inserts the element, or merges it into the stored row with
// element.Merge under a row lock so that an older write never regresses
// content or moderation state.
func (r *PostgresRepository) SaveElement(ctx context.Context, el element.Element) error {
	data, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("encode element %s: %w", el.ID, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save element %s: %w", el.ID, err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO whiteboard_elements (id, session_id, version, created_at, updated_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insert, el.ID, el.SessionID, el.Version, el.CreatedAt, el.UpdatedAt, data)
	if err != nil {
		return fmt.Errorf("save element %s: %w", el.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var stored []byte
		err := tx.QueryRow(ctx, `SELECT data FROM whiteboard_elements WHERE id = $1 FOR UPDATE`, el.ID).Scan(&stored)
		if err != nil {
			return fmt.Errorf("lock element %s: %w", el.ID, err)
		}
		var cur element.Element
		if err := json.Unmarshal(stored, &cur); err != nil {
			return fmt.Errorf("decode element %s: %w", el.ID, err)
		}

		merged, changed := element.Merge(cur, el)
		if !changed {
			return tx.Commit(ctx)
		}
		if data, err = json.Marshal(merged); err != nil {
			return fmt.Errorf("encode element %s: %w", el.ID, err)
		}

		update := `
			UPDATE whiteboard_elements
			SET version = $2, updated_at = $3, data = $4
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, update, el.ID, merged.Version, merged.UpdatedAt, data); err != nil {
			return fmt.Errorf("save element %s: %w", el.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit element %s: %w", el.ID, err)
	}
	return nil
}

func (r *PostgresRepository) LoadElements(ctx context.Context, sessionID string) ([]element.Element, error) {
	query := `
		SELECT data
		FROM whiteboard_elements
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load elements of %s: %w", sessionID, err)
	}
	defer rows.Close()

	elements := make([]element.Element, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan element: %w", err)
		}
		var el element.Element
		if err := json.Unmarshal(data, &el); err != nil {
			return nil, fmt.Errorf("decode element: %w", err)
		}
		elements = append(elements, el)
	}
	return elements, rows.Err()
}

// Register stores a push token. A token that moves to another account follows it.
func (r *PostgresRepository) Register(ctx context.Context, userID string, tok notification.DeviceToken) error {
	query := `
		INSERT INTO device_tokens (token, user_id, platform, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, tok.Token, userID, tok.Platform); err != nil {
		return fmt.Errorf("register device for %s: %w", userID, err)
	}
	return nil
}

func (r *PostgresRepository) Unregister(ctx context.Context, userID, token string) error {
	query := `DELETE FROM device_tokens WHERE token = $1 AND user_id = $2`
	if _, err := r.db.Exec(ctx, query, token, userID); err != nil {
		return fmt.Errorf("unregister device for %s: %w", userID, err)
	}
	return nil
}

func (r *PostgresRepository) TokensFor(ctx context.Context, userIDs []string) ([]notification.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT token, platform
		FROM device_tokens
		WHERE user_id = ANY($1)
		ORDER BY token
	`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var tok notification.DeviceToken
		if err := rows.Scan(&tok.Token, &tok.Platform); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}
