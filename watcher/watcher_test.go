package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/rescache/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains ch in the background into a set.
type collector struct {
	mu   sync.Mutex
	seen map[model.Hash]int
}

func collect(ch <-chan model.Hash) *collector {
	c := &collector{seen: make(map[model.Hash]int)}
	go func() {
		for h := range ch {
			c.mu.Lock()
			c.seen[h]++
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *collector) count(h model.Hash) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[h]
}

func TestFS_FileChange(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "shader.glsl")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	var names sync.Map
	w, err := NewFS(root, Config{
		Debounce: 100 * time.Millisecond,
		OnName:   func(name string) { names.Store(name, true) },
	})
	require.NoError(t, err)
	defer w.Close()

	c := collect(w.Changes())
	h := model.Fingerprint("shader.glsl")

	// A burst of writes collapses into one notification.
	for i := range 5 {
		require.NoError(t, os.WriteFile(file, []byte{byte('a' + i)}, 0o644))
	}

	require.Eventually(t, func() bool { return c.count(h) >= 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, c.count(h))

	_, ok := names.Load("shader.glsl")
	assert.True(t, ok)
}

func TestFS_NewDirectoryAndCompressedName(t *testing.T) {
	root := t.TempDir()
	w, err := NewFS(root, Config{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	c := collect(w.Changes())

	dir := filepath.Join(root, "textures")
	require.NoError(t, os.Mkdir(dir, 0o755))
	// Give the watcher a moment to pick up the new directory.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "stone.png.lz4"), []byte("x"), 0o644)
		return c.count(model.Fingerprint("textures/stone.png")) >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestFS_IgnoresTempFiles(t *testing.T) {
	root := t.TempDir()
	w, err := NewFS(root, Config{Debounce: 10 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	_, _, ok := w.name(filepath.Join(root, ".tmp-file-123"))
	assert.False(t, ok)

	name, h, ok := w.name(filepath.Join(root, "a", "b.bin"))
	assert.True(t, ok)
	assert.Equal(t, "a/b.bin", name)
	assert.Equal(t, model.Fingerprint("a/b.bin"), h)
}

func TestFS_CloseClosesChannel(t *testing.T) {
	w, err := NewFS(t.TempDir(), Config{})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	_, ok := <-w.Changes()
	assert.False(t, ok)

	// Idempotent.
	assert.NoError(t, w.Close())
}

func TestFS_MissingRoot(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"), Config{})
	assert.Error(t, err)
}

func TestManual(t *testing.T) {
	m := NewManual(4)

	assert.True(t, m.NotifyPath("a/b.txt"))
	assert.True(t, m.Notify(42))

	assert.Equal(t, model.Fingerprint("a/b.txt"), <-m.Changes())
	assert.Equal(t, model.Hash(42), <-m.Changes())

	require.NoError(t, m.Close())
	assert.False(t, m.Notify(1))
	_, ok := <-m.Changes()
	assert.False(t, ok)
	assert.NoError(t, m.Close())
}

func TestManual_CloseUnblocksNotify(t *testing.T) {
	m := NewManual(0)

	done := make(chan bool)
	go func() { done <- m.Notify(1) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Close())

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Notify did not return after Close")
	}
}
