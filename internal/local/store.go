// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package local is the offline chat backend.
package local

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jeranaias/parley-tui/internal/service"
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	prompt_id  TEXT NOT NULL DEFAULT '',
	backtrack  INTEGER NOT NULL DEFAULT 0,
	cost_cents REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS logs (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	id       TEXT NOT NULL UNIQUE,
	chat_id  TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	role     TEXT NOT NULL,
	message  TEXT NOT NULL DEFAULT '',
	finished INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_logs_chat_seq ON logs(chat_id, seq);
`

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite persistence layer for local chats.
//
// History paging walks the logs table by rowid: the cursor is the seq of the
// oldest record already delivered, encoded as a decimal string.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and migrates) the database at path. ":memory:" works for
// throwaway stores.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc.org/sqlite serializes through one connection; a single open
	// connection avoids table-lock errors under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func newLogID() string {
	return "log_" + uuid.NewString()
}

// =============================================================================
// CHATS
// =============================================================================

// CreateChat inserts a new conversation and returns its metadata.
func (s *Store) CreateChat(ctx context.Context, title string, backtrack int) (service.ChatIndex, error) {
	idx := service.ChatIndex{
		ID:        "chat_" + uuid.NewString(),
		Title:     title,
		Backtrack: backtrack,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, title, backtrack) VALUES (?, ?, ?)`,
		idx.ID, idx.Title, idx.Backtrack)
	if err != nil {
		return service.ChatIndex{}, err
	}
	return idx, nil
}

// LatestChat returns the most recently created conversation, or
// service.ErrChatNotFound when the store is empty.
func (s *Store) LatestChat(ctx context.Context) (service.ChatIndex, error) {
	var idx service.ChatIndex
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, prompt_id, backtrack, cost_cents FROM chats ORDER BY rowid DESC LIMIT 1`).
		Scan(&idx.ID, &idx.Title, &idx.PromptID, &idx.Backtrack, &idx.CostCents)
	if errors.Is(err, sql.ErrNoRows) {
		return service.ChatIndex{}, service.ErrChatNotFound
	}
	if err != nil {
		return service.ChatIndex{}, err
	}
	return idx, nil
}

// GetIndex fetches conversation metadata.
func (s *Store) GetIndex(ctx context.Context, chatID string) (service.ChatIndex, error) {
	var idx service.ChatIndex
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, prompt_id, backtrack, cost_cents FROM chats WHERE id = ?`,
		chatID).Scan(&idx.ID, &idx.Title, &idx.PromptID, &idx.Backtrack, &idx.CostCents)
	if errors.Is(err, sql.ErrNoRows) {
		return service.ChatIndex{}, service.ErrChatNotFound
	}
	if err != nil {
		return service.ChatIndex{}, err
	}
	return idx, nil
}

// SetPrompt updates the chat's prompt preset; empty clears it.
func (s *Store) SetPrompt(ctx context.Context, chatID, promptID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET prompt_id = ? WHERE id = ?`, promptID, chatID)
	if err != nil {
		return err
	}
	return requireHit(res, service.ErrChatNotFound)
}

// SetTitle updates the chat title.
func (s *Store) SetTitle(ctx context.Context, chatID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = ? WHERE id = ?`, title, chatID)
	if err != nil {
		return err
	}
	return requireHit(res, service.ErrChatNotFound)
}

// AddCost accumulates generation cost on the chat.
func (s *Store) AddCost(ctx context.Context, chatID string, cents float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET cost_cents = cost_cents + ? WHERE id = ?`, cents, chatID)
	return err
}

// =============================================================================
// LOGS
// =============================================================================

// InsertLog appends one record to the chat and returns its id.
func (s *Store) InsertLog(ctx context.Context, chatID string, role service.Role, message string, finished bool) (string, error) {
	id := newLogID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (id, chat_id, role, message, finished) VALUES (?, ?, ?, ?, ?)`,
		id, chatID, role, message, boolInt(finished))
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateLog overwrites a record's content.
func (s *Store) UpdateLog(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE logs SET message = ? WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return requireHit(res, service.ErrLogNotFound)
}

// FinishLog marks a record finished and stores its final content.
func (s *Store) FinishLog(ctx context.Context, id, content string, ok bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE logs SET message = ?, finished = ? WHERE id = ?`, content, boolInt(ok), id)
	if err != nil {
		return err
	}
	return requireHit(res, service.ErrLogNotFound)
}

// DeleteLog removes one record.
func (s *Store) DeleteLog(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireHit(res, service.ErrLogNotFound)
}

// DeleteLogsAfter removes every record of the chat newer than the given log.
// Used by resend to discard the failed tail.
func (s *Store) DeleteLogsAfter(ctx context.Context, id string) error {
	var seq int64
	var chatID string
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, chat_id FROM logs WHERE id = ?`, id).Scan(&seq, &chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return service.ErrLogNotFound
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM logs WHERE chat_id = ? AND seq > ?`, chatID, seq)
	return err
}

// GetLog fetches one record by id.
func (s *Store) GetLog(ctx context.Context, id string) (service.ChatLog, string, error) {
	var log service.ChatLog
	var chatID string
	var finished int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, role, message, finished FROM logs WHERE id = ?`,
		id).Scan(&log.ID, &chatID, &log.Role, &log.Message, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return service.ChatLog{}, "", service.ErrLogNotFound
	}
	if err != nil {
		return service.ChatLog{}, "", err
	}
	log.Finished = finished != 0
	return log, chatID, nil
}

// =============================================================================
// HISTORY PAGING
// =============================================================================

// LoadLogPage returns up to size records older than the cursor, newest first.
// A nil cursor starts from the latest record; a nil NextCursor in the result
// means no earlier history remains.
func (s *Store) LoadLogPage(ctx context.Context, chatID string, cursor *string, size int) (service.LogPage, error) {
	if size <= 0 {
		size = 20
	}

	before := int64(1<<62 - 1)
	if cursor != nil {
		v, err := strconv.ParseInt(*cursor, 10, 64)
		if err != nil {
			return service.LogPage{}, &service.ServiceError{Message: "malformed cursor"}
		}
		before = v
	}

	// Fetch one extra row to learn whether an earlier page exists.
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, role, message, finished
		 FROM logs WHERE chat_id = ? AND seq < ?
		 ORDER BY seq DESC LIMIT ?`,
		chatID, before, size+1)
	if err != nil {
		return service.LogPage{}, err
	}
	defer rows.Close()

	var page service.LogPage
	var seqs []int64
	for rows.Next() {
		var seq int64
		var log service.ChatLog
		var finished int
		if err := rows.Scan(&seq, &log.ID, &log.Role, &log.Message, &finished); err != nil {
			return service.LogPage{}, err
		}
		log.Finished = finished != 0
		page.Records = append(page.Records, log)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return service.LogPage{}, err
	}

	if len(page.Records) > size {
		page.Records = page.Records[:size]
		next := strconv.FormatInt(seqs[size-1], 10)
		page.NextCursor = &next
	}
	return page, nil
}

// RecentLogs returns the chat's latest records in chronological order, for
// building the generation context. limit 0 means everything.
func (s *Store) RecentLogs(ctx context.Context, chatID string, limit int) ([]service.ChatLog, error) {
	query := `SELECT id, role, message, finished FROM logs WHERE chat_id = ? ORDER BY seq DESC`
	args := []any{chatID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []service.ChatLog
	for rows.Next() {
		var log service.ChatLog
		var finished int
		if err := rows.Scan(&log.ID, &log.Role, &log.Message, &finished); err != nil {
			return nil, err
		}
		log.Finished = finished != 0
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireHit converts a zero-row update into the given sentinel.
func requireHit(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
