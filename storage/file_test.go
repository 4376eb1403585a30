package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	backend, err := NewFileBackend(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return backend
}

func TestFileBackend_PutGet(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	id, err := backend.Put(ctx, "docs", "hello.txt", []byte("hello"), "text/plain", map[string]string{"owner": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "docs/hello.txt", id)

	data, err := backend.Get(ctx, "docs", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	meta, err := backend.GetMetadata(ctx, "docs", "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "alice", meta.UserMetadata["owner"])
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestFileBackend_PutRequiresContainer(t *testing.T) {
	backend := newTestFileBackend(t)

	_, err := backend.Put(context.Background(), "missing", "a.txt", []byte("x"), "", nil)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFileBackend_OverwritePreservesCreatedAt(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	_, err := backend.Put(ctx, "docs", "a.txt", []byte("v1"), "text/plain", nil)
	require.NoError(t, err)
	first, err := backend.GetMetadata(ctx, "docs", "a.txt")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = backend.Put(ctx, "docs", "a.txt", []byte("v2"), "text/plain", nil)
	require.NoError(t, err)

	second, err := backend.GetMetadata(ctx, "docs", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, int64(2), second.Size)
}

func TestFileBackend_GetMissing(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	_, err := backend.Get(ctx, "docs", "nope.txt")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFileBackend_DeleteIdempotent(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	_, err := backend.Put(ctx, "docs", "a.txt", []byte("x"), "", nil)
	require.NoError(t, err)

	require.NoError(t, backend.Delete(ctx, "docs", "a.txt"))
	// Deleting again must still succeed.
	require.NoError(t, backend.Delete(ctx, "docs", "a.txt"))

	exists, err := backend.Exists(ctx, "docs", "a.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileBackend_ListWithPrefix(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	for _, name := range []string{"logs/a.log", "logs/b.log", "readme.txt"} {
		_, err := backend.Put(ctx, "docs", name, []byte("x"), "", nil)
		require.NoError(t, err)
	}

	it, err := backend.List(ctx, "docs", "logs/")
	require.NoError(t, err)
	infos, err := CollectObjects(ctx, it)
	require.NoError(t, err)

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"logs/a.log", "logs/b.log"}, names)
}

func TestFileBackend_IteratorRestart(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	_, err := backend.Put(ctx, "docs", "a.txt", []byte("x"), "", nil)
	require.NoError(t, err)

	it, err := backend.List(ctx, "docs", "")
	require.NoError(t, err)

	_, ok := it.Next(ctx)
	require.True(t, ok)
	_, ok = it.Next(ctx)
	require.False(t, ok)

	// A new object becomes visible after a restart; the iterator re-reads
	// the container rather than replaying its old snapshot.
	_, err = backend.Put(ctx, "docs", "b.txt", []byte("y"), "", nil)
	require.NoError(t, err)

	it.Restart()
	infos, err := CollectObjects(ctx, it)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestFileBackend_Copy(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "src"))
	require.NoError(t, backend.CreateContainer(ctx, "dst"))

	_, err := backend.Put(ctx, "src", "a.txt", []byte("payload"), "text/plain", map[string]string{"k": "v"})
	require.NoError(t, err)

	require.NoError(t, backend.Copy(ctx, "src", "a.txt", "dst", "b.txt"))

	data, err := backend.Get(ctx, "dst", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	meta, err := backend.GetMetadata(ctx, "dst", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "v", meta.UserMetadata["k"])
}

func TestFileBackend_Usage(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	_, err := backend.Put(ctx, "docs", "a.txt", []byte("12345"), "", nil)
	require.NoError(t, err)
	_, err = backend.Put(ctx, "docs", "b.txt", []byte("123"), "", nil)
	require.NoError(t, err)

	usage, err := backend.Usage(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.ObjectCount)
	assert.Equal(t, int64(8), usage.TotalBytes)
}

func TestFileBackend_DeleteContainer(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))
	_, err := backend.Put(ctx, "docs", "a.txt", []byte("x"), "", nil)
	require.NoError(t, err)

	require.NoError(t, backend.DeleteContainer(ctx, "docs"))
	assert.ErrorIs(t, backend.DeleteContainer(ctx, "docs"), interfaces.ErrNotFound)
}

func TestFileBackend_RejectsTraversal(t *testing.T) {
	backend := newTestFileBackend(t)
	ctx := context.Background()
	require.NoError(t, backend.CreateContainer(ctx, "docs"))

	tests := []struct {
		container string
		name      string
	}{
		{"docs", "../escape.txt"},
		{"docs", "/etc/passwd"},
		{"..", "a.txt"},
		{"a/b", "a.txt"},
		{"docs", ""},
	}
	for _, tt := range tests {
		_, err := backend.Put(ctx, tt.container, tt.name, []byte("x"), "", nil)
		assert.Error(t, err, "container=%q name=%q", tt.container, tt.name)
	}
}

func TestFileBackend_PresignUnsupported(t *testing.T) {
	backend := newTestFileBackend(t)

	_, err := backend.PresignURL(context.Background(), "docs", "a.txt", time.Minute, interfaces.PresignRead)
	assert.ErrorIs(t, err, interfaces.ErrNotSupported)
}
