// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(filepath.Join(t.TempDir(), "reports"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "report_1/report.md", []byte("# Title")))
	require.NoError(t, s.Put(ctx, "report_1/report.md", []byte("# Title v2")))

	data, err := s.Get(ctx, "report_1/report.md")
	require.NoError(t, err)
	assert.Equal(t, "# Title v2", string(data))

	entries, err := os.ReadDir(filepath.Join(s.Root, "report_1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFSStore_GetMissing(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "nope.html")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFSStore_InvalidNames(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape.txt", "/etc/passwd"} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(context.Background(), name, []byte("x")), ErrInvalidName)
			assert.Empty(t, s.Path(name))
		})
	}
}

func TestFSStore_List(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"b/state.json", "a/report.html", "a/state.json", ".baseline.yaml"} {
		require.NoError(t, s.Put(ctx, name, []byte("{}")))
	}

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/report.html", "a/state.json", "b/state.json"}, all)

	a, err := s.List(ctx, "a/")
	require.NoError(t, err)
	assert.Len(t, a, 2)
}

func TestFSStore_Path(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "x", "y.pdf"), s.Path("x/y.pdf"))
}
