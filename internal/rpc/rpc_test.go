package rpc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeEchoScript creates a tiny shell script that answers every request
// line with a matching response, plus one agent_start/agent_end pair,
// standing in for a real teammate process in these tests.
func writeEchoScript(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "echo.sh")
	script := `#!/bin/sh
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  echo "{\"type\":\"agent_start\"}"
  echo "{\"type\":\"response\",\"id\":$id,\"command\":\"echo\",\"success\":true}"
  echo "{\"type\":\"agent_end\"}"
done
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestStartSendReceivesMatchingResponse(t *testing.T) {
	script := writeEchoScript(t)
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, r.Start(ctx, StartOptions{Cmd: "sh", Args: []string{script}}))
	require.Equal(t, Idle, r.State())

	resp, err := r.Send(ctx, "prompt", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "echo", resp.Command)

	require.NoError(t, r.Stop(ctx))
}

func TestEventListenerReceivesEvents(t *testing.T) {
	script := writeEchoScript(t)
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Start(ctx, StartOptions{Cmd: "sh", Args: []string{script}}))

	events := make(chan Event, 8)
	unsub := r.OnEvent(func(e Event) { events <- e })
	defer unsub()

	_, err := r.Send(ctx, "prompt", nil)
	require.NoError(t, err)

	select {
	case e := <-events:
		require.Equal(t, "agent_start", e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected agent_start event")
	}

	require.NoError(t, r.Stop(ctx))
}

func TestSendTimesOutWhenProcessNeverResponds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "silent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\ncat >/dev/null\n"), 0755))

	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Start(ctx, StartOptions{Cmd: "sh", Args: []string{path}}))

	reqCtx, reqCancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer reqCancel()
	_, err := r.Send(reqCtx, "prompt", nil)
	require.Error(t, err)

	require.NoError(t, r.Stop(ctx))
}

func TestStopIsIdempotent(t *testing.T) {
	script := writeEchoScript(t)
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Start(ctx, StartOptions{Cmd: "sh", Args: []string{script}}))

	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
	require.Equal(t, Stopped, r.State())
}

func TestProcessExitRejectsPendingRequests(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exitfast.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0755))

	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Start(ctx, StartOptions{Cmd: "sh", Args: []string{path}}))

	time.Sleep(50 * time.Millisecond)
	_, err := r.Send(ctx, "prompt", nil)
	require.Error(t, err)
	require.Equal(t, Errored, r.State())
}
