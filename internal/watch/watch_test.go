package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveRefcounts(t *testing.T) {
	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.frag")
	b := filepath.Join(dir, "b.frag")

	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(b))
	assert.Equal(t, []string{a, b}, w.Watched())

	require.NoError(t, w.Remove(a))
	assert.Equal(t, []string{a, b}, w.Watched(), "a still has one reference")
	require.NoError(t, w.Remove(a))
	assert.Equal(t, []string{b}, w.Watched())
	require.NoError(t, w.Remove(b))
	assert.Empty(t, w.Watched())

	assert.Error(t, w.Remove(b))
}

func TestAddMissingDirectory(t *testing.T) {
	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.Add(filepath.Join(t.TempDir(), "missing", "x.frag")))
	assert.Empty(t, w.Watched())
}

func TestRunReportsWrites(t *testing.T) {
	w, err := New(20 * time.Millisecond)
	require.NoError(t, err)

	dir := t.TempDir()
	shader := filepath.Join(dir, "crt.frag")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(shader, []byte("a"), 0o644))
	require.NoError(t, w.Add(shader))

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(p string) { changes <- p })
	}()

	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(shader, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(shader, []byte("c"), 0o644))

	select {
	case p := <-changes:
		assert.Equal(t, shader, p)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.NoError(t, <-done)
	for p := range drain(changes) {
		assert.Equal(t, shader, p, "unwatched files are not reported")
	}
}

func drain(ch chan string) map[string]struct{} {
	out := make(map[string]struct{})
	for {
		select {
		case p := <-ch:
			out[p] = struct{}{}
		default:
			return out
		}
	}
}
