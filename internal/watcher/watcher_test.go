package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 200*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{DebounceWindow: 50 * time.Millisecond}.WithDefaults()
	assert.Equal(t, 50*time.Millisecond, got.DebounceWindow)
	assert.Equal(t, 5*time.Second, got.PollInterval)
}

func TestWatcher_Start_WatchesDirectory(t *testing.T) {
	dir := t.TempDir()

	w, err := New(Options{DebounceWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0644))

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change pulse after file creation")
	}
}

func TestWatcher_BurstOfWrites_CoalescesToOnePulse(t *testing.T) {
	dir := t.TempDir()

	w, err := New(Options{DebounceWindow: 100 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, dir))

	path := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a pulse for the burst")
	}

	select {
	case _, ok := <-w.Changes():
		if ok {
			t.Fatal("expected the burst to coalesce into a single pulse")
		}
	case <-time.After(300 * time.Millisecond):
		// no second pulse arrived before the debounce window elapsed again: good
	}
}

func TestWatcher_IgnoredPath_DoesNotPulse(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0644))

	w, err := New(Options{DebounceWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.log"), []byte("noise"), 0644))

	select {
	case <-w.Changes():
		t.Fatal("ignored file should not trigger a pulse")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_Stop_ClosesChannels(t *testing.T) {
	dir := t.TempDir()

	w, err := New(DefaultOptions())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx, dir))
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop()) // idempotent

	_, ok := <-w.Changes()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

func TestFingerprint_ChangesWhenFileModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0644))

	noIgnore := func(string, bool) bool { return false }

	before, err := fingerprint(dir, noIgnore)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("two-longer"), 0644))

	after, err := fingerprint(dir, noIgnore)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestFingerprint_StableAcrossRepeatedScans(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("stable"), 0644))

	noIgnore := func(string, bool) bool { return false }

	first, err := fingerprint(dir, noIgnore)
	require.NoError(t, err)
	second, err := fingerprint(dir, noIgnore)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
