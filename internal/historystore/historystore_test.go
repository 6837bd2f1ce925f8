package historystore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loquat-fw/loquat/internal/hotreload"
)

func TestStore_RecordAndForComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Record(ctx, hotreload.Entry{Component: "a", Attempts: 1, Success: true, At: time.Now()}))
	require.NoError(t, s.Record(ctx, hotreload.Entry{Component: "a", Attempts: 2, Success: false, Error: "boom", At: time.Now()}))
	require.NoError(t, s.Record(ctx, hotreload.Entry{Component: "b", Attempts: 1, Success: true, At: time.Now()}))

	rows, err := s.ForComponent(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStore_OpenMigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	rows, err := s.ForComponent(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
