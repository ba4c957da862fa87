package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/glasshq/glass/internal/logging"
	"github.com/glasshq/glass/internal/session"
)

const activeIndexKey = "active_index"

type sessionStore struct {
	db *sql.DB
}

// NewSessionStore returns a session.Store backed by db.
func NewSessionStore(db *sql.DB) session.Store {
	return &sessionStore{db: db}
}

// Save replaces the stored snapshot in one transaction, so a crash
// mid-write never leaves a half-session behind.
func (s *sessionStore) Save(ctx context.Context, state session.State) error {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_tabs`); err != nil {
		return fmt.Errorf("clear session tabs: %w", err)
	}
	for i, tab := range state.Tabs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_tabs (position, url, title, favicon_url, is_pinned, is_new_tab_page)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			i, tab.URL, tab.Title, tab.FaviconURL, tab.IsPinned, tab.IsNewTabPage,
		)
		if err != nil {
			return fmt.Errorf("insert session tab: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		activeIndexKey, strconv.Itoa(state.ActiveIndex),
	)
	if err != nil {
		return fmt.Errorf("save active index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session save: %w", err)
	}
	log.Debug().Int("tabs", len(state.Tabs)).Msg("session saved")
	return nil
}

// Load returns the stored snapshot. A fresh database yields an empty
// state, not an error.
func (s *sessionStore) Load(ctx context.Context) (session.State, error) {
	var state session.State

	rows, err := s.db.QueryContext(ctx,
		`SELECT url, title, favicon_url, is_pinned, is_new_tab_page
		 FROM session_tabs ORDER BY position`,
	)
	if err != nil {
		return state, fmt.Errorf("load session tabs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tab session.Tab
		if err := rows.Scan(&tab.URL, &tab.Title, &tab.FaviconURL, &tab.IsPinned, &tab.IsNewTabPage); err != nil {
			return state, fmt.Errorf("scan session tab: %w", err)
		}
		state.Tabs = append(state.Tabs, tab)
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("load session tabs: %w", err)
	}

	var raw string
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM session_meta WHERE key = ?`, activeIndexKey,
	).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		state.ActiveIndex = len(state.Tabs) - 1
	case err != nil:
		return state, fmt.Errorf("load active index: %w", err)
	default:
		idx, convErr := strconv.Atoi(raw)
		if convErr != nil || idx < 0 || idx >= len(state.Tabs) {
			idx = len(state.Tabs) - 1
		}
		state.ActiveIndex = idx
	}
	return state, nil
}

func (s *sessionStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
