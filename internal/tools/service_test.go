package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schovi/termtools/internal/executor"
	"github.com/schovi/termtools/internal/host/hosttest"
	"github.com/schovi/termtools/internal/session"
)

func newTestService(t *testing.T, structured bool) (*Service, *hosttest.Host) {
	t.Helper()
	h := hosttest.NewHost(structured)
	reg := session.NewRegistry(h)
	t.Cleanup(reg.Close)
	svc := NewService(reg, executor.New(h, executor.WithTimeout(2*time.Second)), WithDefaults("/bin/sh", ""))
	return svc, h
}

func TestServiceCreateAndList(t *testing.T) {
	svc, h := newTestService(t, true)
	ctx := context.Background()

	resp, err := svc.Create(ctx, CreateRequest{Name: "build"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Session)
	assert.True(t, resp.Session.ShellIntegration)
	assert.Equal(t, "/bin/sh", resp.Session.Shell)
	assert.Equal(t, 1, h.Spawned()[0].ShownCount())

	dup, err := svc.Create(ctx, CreateRequest{Name: "build"})
	require.NoError(t, err)
	assert.False(t, dup.Success)
	assert.Equal(t, ReasonExists, dup.Reason)

	bad, err := svc.Create(ctx, CreateRequest{Name: "bell\a"})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidName, bad.Reason)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "build", list.Sessions[0].Name)
	assert.Equal(t, string(session.KindStructured), list.Sessions[0].Kind)
}

func TestServiceCreateUsesRequestShell(t *testing.T) {
	svc, _ := newTestService(t, false)
	resp, err := svc.Create(context.Background(), CreateRequest{Name: "zsh", ShellPath: "/bin/zsh"})
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", resp.Session.Shell)
	assert.False(t, resp.Session.ShellIntegration)
}

func TestServiceSendCreatesSession(t *testing.T) {
	svc, h := newTestService(t, false)
	ctx := context.Background()

	resp, err := svc.Send(ctx, SendRequest{Name: "dev", Command: "npm start"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Created)
	assert.Equal(t, []string{"npm start\n"}, h.Spawned()[0].Sent())

	again, err := svc.Send(ctx, SendRequest{Name: "dev", Command: "ls"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Len(t, h.Spawned(), 1)
}

func TestServiceSendCapture(t *testing.T) {
	svc, _ := newTestService(t, true)

	resp, err := svc.Send(context.Background(), SendRequest{Name: "cap", Command: "echo HELLO", Capture: true})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Result.Captured)
	assert.Equal(t, "HELLO", resp.Result.Output)
	require.NotNil(t, resp.Result.ExitCode)
	assert.Equal(t, 0, *resp.Result.ExitCode)
}

func TestServiceSendCaptureFailure(t *testing.T) {
	svc, h := newTestService(t, true)
	h.Responder = func(string) hosttest.Reply {
		return hosttest.Reply{Output: "boom\r\n", ExitCode: hosttest.Exit(3)}
	}

	resp, err := svc.Send(context.Background(), SendRequest{Name: "cap", Command: "false", Capture: true})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 3, *resp.Result.ExitCode)
	assert.Equal(t, "boom", resp.Result.Output)
}

func TestServiceSendRaw(t *testing.T) {
	svc, h := newTestService(t, false)

	resp, err := svc.Send(context.Background(), SendRequest{Name: "raw", Command: `q\x03`, Raw: true})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"q\x03"}, h.Spawned()[0].Sent())
}

func TestServiceSendRejectsBadInput(t *testing.T) {
	svc, h := newTestService(t, false)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    SendRequest
		reason string
	}{
		{"raw with capture", SendRequest{Name: "a", Command: "x", Raw: true, Capture: true}, ReasonInvalidInput},
		{"bad escape", SendRequest{Name: "a", Command: `\xZZ`, Raw: true}, ReasonInvalidInput},
		{"bad name", SendRequest{Name: "", Command: "ls"}, ReasonInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.Send(ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
	assert.Empty(t, h.Spawned())
}

func TestServiceDelete(t *testing.T) {
	svc, h := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "gone"})
	require.NoError(t, err)

	resp, err := svc.Delete(ctx, DeleteRequest{Name: "gone"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, h.Spawned()[0].Disposed())

	resp, err = svc.Delete(ctx, DeleteRequest{Name: "gone"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
}

func TestServiceRename(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := svc.Create(ctx, CreateRequest{Name: name})
		require.NoError(t, err)
	}

	resp, err := svc.Rename(ctx, RenameRequest{OldName: "missing", NewName: "c"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, resp.Reason)

	resp, err = svc.Rename(ctx, RenameRequest{OldName: "a", NewName: "b"})
	require.NoError(t, err)
	assert.Equal(t, ReasonExists, resp.Reason)

	resp, err = svc.Rename(ctx, RenameRequest{OldName: "a", NewName: "c"})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	names := []string{}
	for _, s := range list.Sessions {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, names)
}

func TestServiceCancel(t *testing.T) {
	svc, h := newTestService(t, true)
	h.Responder = func(string) hosttest.Reply { return hosttest.Reply{Hang: true} }
	ctx := context.Background()

	resp, err := svc.Cancel(ctx, CancelRequest{Name: "missing"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, resp.Reason)

	done := make(chan *SendResponse, 1)
	go func() {
		r, _ := svc.Send(ctx, SendRequest{Name: "long", Command: "sleep 100", Capture: true})
		done <- r
	}()
	require.Eventually(t, func() bool {
		return len(h.Spawned()) == 1 && len(h.Spawned()[0].Sent()) == 1
	}, time.Second, 10*time.Millisecond)

	resp, err = svc.Cancel(ctx, CancelRequest{Name: "long"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Found)
	assert.Equal(t, "sleep 100", resp.Command)

	sent := <-done
	require.NotNil(t, sent.Result.ExitCode)
	assert.Equal(t, 130, *sent.Result.ExitCode)
}

func TestServiceRead(t *testing.T) {
	svc, h := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Send(ctx, SendRequest{Name: "r", Command: "echo one", Capture: true})
	require.NoError(t, err)
	h.Spawned()[0].Print("\x1b[31mred\x1b[0m\r\nlast\r\n")

	resp, err := svc.Read(ctx, ReadRequest{Name: "r", Lines: 2})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "red\nlast", resp.Screen)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "echo one", resp.LastRun.Command)
	assert.Equal(t, "one", resp.LastRun.Output)
	assert.True(t, resp.LastRun.Captured)

	missing, err := svc.Read(ctx, ReadRequest{Name: "nope"})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, missing.Reason)
}

func TestServiceReadWaitsForPattern(t *testing.T) {
	svc, h := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "w"})
	require.NoError(t, err)
	term := h.Spawned()[0]
	term.Print("old output\r\n")

	go func() {
		time.Sleep(50 * time.Millisecond)
		term.Print("server ready\r\n")
	}()

	resp, err := svc.Read(ctx, ReadRequest{Name: "w", WaitPattern: "ready", TimeoutMs: 2000})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.Waited)
	assert.Equal(t, "server ready", resp.Screen)
}

func TestServiceReadWaitTimeout(t *testing.T) {
	svc, _ := newTestService(t, false)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{Name: "w"})
	require.NoError(t, err)

	resp, err := svc.Read(ctx, ReadRequest{Name: "w", WaitPattern: "never", TimeoutMs: 100})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "timeout")
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, "c\nd", tailLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a\nb", tailLines("a\nb", 10))
	assert.Equal(t, "", tailLines("\n\n", 3))
}
