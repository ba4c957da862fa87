package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glasshq/glass/internal/logging"
	"github.com/glasshq/glass/internal/persistence/sqlite"
	"github.com/glasshq/glass/internal/session"
)

func testCtx() context.Context {
	logger := logging.New(logging.Config{Level: zerolog.DebugLevel, Format: "console"})
	return logging.WithContext(context.Background(), logger)
}

func openStore(t *testing.T) session.Store {
	t.Helper()
	ctx := testCtx()
	dbPath := filepath.Join(t.TempDir(), "glass.db")

	db, err := sqlite.NewConnection(ctx, dbPath)
	require.NoError(t, err)

	store := sqlite.NewSessionStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := testCtx()
	store := openStore(t)

	state := session.State{
		Tabs: []session.Tab{
			{URL: "https://a.example", Title: "A", FaviconURL: "https://a.example/f.ico", IsPinned: true},
			{URL: "https://b.example", Title: "B"},
			{URL: "", IsNewTabPage: true},
		},
		ActiveIndex: 1,
	}
	require.NoError(t, store.Save(ctx, state))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestSessionStore_SaveReplacesPreviousSnapshot(t *testing.T) {
	ctx := testCtx()
	store := openStore(t)

	require.NoError(t, store.Save(ctx, session.State{
		Tabs:        []session.Tab{{URL: "https://a.example"}, {URL: "https://b.example"}},
		ActiveIndex: 0,
	}))
	require.NoError(t, store.Save(ctx, session.State{
		Tabs:        []session.Tab{{URL: "https://c.example"}},
		ActiveIndex: 0,
	}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Tabs, 1)
	assert.Equal(t, "https://c.example", got.Tabs[0].URL)
}

func TestSessionStore_LoadEmptyDatabase(t *testing.T) {
	ctx := testCtx()
	store := openStore(t)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Tabs)
	assert.Equal(t, -1, got.ActiveIndex)
}

func TestSessionStore_ClampsCorruptActiveIndex(t *testing.T) {
	ctx := testCtx()
	store := openStore(t)

	require.NoError(t, store.Save(ctx, session.State{
		Tabs:        []session.Tab{{URL: "https://a.example"}},
		ActiveIndex: 42,
	}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ActiveIndex)
}
