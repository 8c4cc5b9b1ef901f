package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := parseLevel("verbose")
	require.Error(t, err)
}

func serverArgs(dir, port string) []string {
	return []string{
		"-host", "127.0.0.1",
		"-port", port,
		"-data-dir", dir,
		"-db", "test",
		"-backend", "json",
		"-log-level", "error",
	}
}

func readSnapshot(t *testing.T, dir string) []map[string]any {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, ".db_dump-test.json"))
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(b, &docs))
	return docs
}

func TestRunSavesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, serverArgs(dir, "0"), func(a net.Addr) { addrs <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("run returned before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post("http://"+addr.String()+"/card", "application/json", strings.NewReader(`{"title":"keep me"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}

	docs := readSnapshot(t, dir)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep me", docs[0]["title"])
	assert.Equal(t, float64(0), docs[0]["id"])
}

func TestRunSavesWhenListenFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	dir := t.TempDir()
	err = run(context.Background(), serverArgs(dir, port), func(net.Addr) {
		t.Error("listening on an address already in use")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")

	assert.Empty(t, readSnapshot(t, dir))
}

func TestRunRejectsBadArgs(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), append(serverArgs(dir, "0"), "extra"), nil)
	require.ErrorContains(t, err, "unknown arguments")

	err = run(context.Background(), []string{"-backend", "postgres", "-data-dir", dir}, nil)
	require.ErrorContains(t, err, "unknown store backend")

	_, err = os.Stat(filepath.Join(dir, ".db_dump-test.json"))
	assert.True(t, os.IsNotExist(err))
}
