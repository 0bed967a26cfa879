package anchor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "anchor.json"), "k")
	id, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestFileStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "anchor.json")
	s := NewFileStore(path, "active_chat_ticket")

	require.NoError(t, s.Save(ctx, "T-100"))
	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T-100", id)

	// a fresh store over the same file sees the anchor
	id, err = NewFileStore(path, "active_chat_ticket").Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T-100", id)

	require.NoError(t, s.Clear(ctx))
	id, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.Clear(ctx))
}

func TestFileStore_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "anchor.json")
	a := NewFileStore(path, "a")
	b := NewFileStore(path, "b")

	require.NoError(t, a.Save(ctx, "T-1"))
	require.NoError(t, b.Save(ctx, "T-2"))
	require.NoError(t, a.Clear(ctx))

	id, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T-2", id)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anchor.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path, "k").Load(context.Background())
	assert.ErrorContains(t, err, "parse anchor file")
}
