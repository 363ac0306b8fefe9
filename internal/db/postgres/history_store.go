package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"fundseek/internal/domain/history"
)

// HistoryStore chat_history_messages 表：按会话追加的消息日志，
// 自增主键即插入顺序。
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore 创建历史消息存储
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// EnsureTable 确保历史表存在
func (s *HistoryStore) EnsureTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS chat_history_messages (
		id         SERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		message    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history_messages(session_id, id);`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// ListMessages 按插入顺序取会话的全部消息
func (s *HistoryStore) ListMessages(ctx context.Context, sessionID string) ([]history.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message FROM chat_history_messages WHERE session_id = $1 ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []history.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg history.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// AppendMessages 把整批消息作为一次有序写入追加到会话日志（单事务）
func (s *HistoryStore) AppendMessages(ctx context.Context, sessionID string, messages []history.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_history_messages (session_id, message) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, raw); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}

	return tx.Commit()
}
