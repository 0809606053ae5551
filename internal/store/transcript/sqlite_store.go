package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zhouzirui/locus/backend/internal/model/chat"
)

// SQLiteStore keeps chat logs in a chat_logs table. Messages are stored as a
// JSON column since a log is never edited after it is saved.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps insertion order identical to seq order.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		language_code TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Add(ctx context.Context, cl chat.ChatLog) (chat.ChatLog, error) {
	cl = cloneLog(prepare(cl))

	messages, err := json.Marshal(cl.Messages)
	if err != nil {
		return cl, fmt.Errorf("%w: encode messages: %v", ErrPersist, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (id, title, language_code, messages, timestamp) VALUES (?, ?, ?, ?, ?)`,
		cl.ID, cl.Title, cl.LanguageCode, string(messages), cl.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return cl, fmt.Errorf("%w: insert: %v", ErrPersist, err)
	}
	return cl, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", ErrPersist, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrPersist, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]chat.ChatLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, language_code, messages, timestamp FROM chat_logs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query chat logs: %w", err)
	}
	defer rows.Close()

	logs := make([]chat.ChatLog, 0)
	for rows.Next() {
		cl, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, cl)
	}
	return logs, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (chat.ChatLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, language_code, messages, timestamp FROM chat_logs WHERE id = ?`, id)
	cl, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.ChatLog{}, ErrNotFound
	}
	return cl, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (chat.ChatLog, error) {
	var (
		cl       chat.ChatLog
		messages string
		ts       string
	)
	if err := row.Scan(&cl.ID, &cl.Title, &cl.LanguageCode, &messages, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.ChatLog{}, err
		}
		return chat.ChatLog{}, fmt.Errorf("scan chat log: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &cl.Messages); err != nil {
		return chat.ChatLog{}, fmt.Errorf("decode messages of %s: %w", cl.ID, err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return chat.ChatLog{}, fmt.Errorf("parse timestamp of %s: %w", cl.ID, err)
	}
	cl.Timestamp = parsed
	return cl, nil
}
