package session

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schovi/termtools/internal/host/hosttest"
	"github.com/schovi/termtools/internal/metrics"
)

func newTestRegistry(t *testing.T, structured bool) (*Registry, *hosttest.Host) {
	t.Helper()
	h := hosttest.NewHost(structured)
	r := NewRegistry(h)
	t.Cleanup(r.Close)
	return r, h
}

func TestGetOrCreateIsUnique(t *testing.T) {
	r, h := newTestRegistry(t, true)

	first, created, err := r.GetOrCreate("build", CreateOptions{})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := r.GetOrCreate("build", CreateOptions{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Len(t, h.Spawned(), 1)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	r, h := newTestRegistry(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.GetOrCreate("shared", CreateOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.Spawned(), 1)
	assert.Len(t, r.List(), 1)
}

func TestSessionKindFollowsCapability(t *testing.T) {
	r, _ := newTestRegistry(t, true)
	s, _, err := r.GetOrCreate("structured", CreateOptions{})
	require.NoError(t, err)
	structured, ok := s.(*StructuredSession)
	require.True(t, ok)
	assert.Equal(t, KindStructured, structured.Kind())
	assert.NotNil(t, structured.Integration())

	rb, _ := newTestRegistry(t, false)
	b, _, err := rb.GetOrCreate("basic", CreateOptions{})
	require.NoError(t, err)
	_, ok = b.(*BasicSession)
	assert.True(t, ok)
	assert.Equal(t, KindBasic, b.Kind())
}

func TestCreateConflict(t *testing.T) {
	r, _ := newTestRegistry(t, true)

	_, err := r.Create("dup", CreateOptions{})
	require.NoError(t, err)
	_, err = r.Create("dup", CreateOptions{})
	assert.ErrorIs(t, err, ErrExists)
}

func TestCreateInvalidName(t *testing.T) {
	r, h := newTestRegistry(t, true)

	_, err := r.Create("tab\there", CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidName)
	_, _, err = r.GetOrCreate("", CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Empty(t, h.Spawned())
}

func TestGetOrCreateAcceptsFreeFormNames(t *testing.T) {
	r, h := newTestRegistry(t, true)

	names := []string{"frontend/web", "Build #1", "ビルド", "_scratch", "npm (dev)"}
	for _, name := range names {
		s, created, err := r.GetOrCreate(name, CreateOptions{})
		require.NoError(t, err, name)
		assert.True(t, created)
		assert.Equal(t, name, s.Name())
	}
	assert.Len(t, h.Spawned(), len(names))
	assert.Len(t, r.List(), len(names))
}

func TestSpawnFailurePropagates(t *testing.T) {
	r, h := newTestRegistry(t, true)
	h.SpawnErr = errors.New("no pty")

	_, _, err := r.GetOrCreate("broken", CreateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pty")
	_, ok := r.Get("broken")
	assert.False(t, ok)
}

func TestReapOnRead(t *testing.T) {
	r, h := newTestRegistry(t, true)

	_, _, err := r.GetOrCreate("dev", CreateOptions{})
	require.NoError(t, err)
	h.Spawned()[0].Exit()

	_, ok := r.Get("dev")
	assert.False(t, ok)
	assert.Empty(t, r.List())

	_, created, err := r.GetOrCreate("dev", CreateOptions{})
	require.NoError(t, err)
	assert.True(t, created, "a reaped name gets a fresh terminal")
	assert.Len(t, h.Spawned(), 2)
}

func TestListReconcilesWithHost(t *testing.T) {
	r, h := newTestRegistry(t, true)

	for _, name := range []string{"b", "a", "c"} {
		_, _, err := r.GetOrCreate(name, CreateOptions{})
		require.NoError(t, err)
	}
	h.Forget(h.Spawned()[2])

	names := []string{}
	for _, s := range r.List() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestDelete(t *testing.T) {
	r, h := newTestRegistry(t, true)

	assert.False(t, r.Delete("ghost"))

	_, _, err := r.GetOrCreate("tmp", CreateOptions{})
	require.NoError(t, err)
	assert.True(t, r.Delete("tmp"))
	assert.True(t, h.Spawned()[0].Disposed())

	_, ok := r.Get("tmp")
	assert.False(t, ok)
	assert.False(t, r.Delete("tmp"))
}

func TestDeleteExitedSessionIsNotFound(t *testing.T) {
	r, h := newTestRegistry(t, true)

	_, _, err := r.GetOrCreate("gone", CreateOptions{})
	require.NoError(t, err)
	h.Spawned()[0].Exit()

	assert.False(t, r.Delete("gone"))
	assert.Empty(t, r.List())
}

func TestRename(t *testing.T) {
	r, h := newTestRegistry(t, true)

	s, _, err := r.GetOrCreate("a", CreateOptions{})
	require.NoError(t, err)
	_, _, err = r.GetOrCreate("b", CreateOptions{})
	require.NoError(t, err)

	t.Run("missing source", func(t *testing.T) {
		assert.ErrorIs(t, r.Rename("zzz", "y"), ErrNotFound)
	})

	t.Run("taken target leaves both intact", func(t *testing.T) {
		assert.ErrorIs(t, r.Rename("a", "b"), ErrExists)
		_, okA := r.Get("a")
		_, okB := r.Get("b")
		assert.True(t, okA)
		assert.True(t, okB)
	})

	t.Run("invalid target", func(t *testing.T) {
		assert.ErrorIs(t, r.Rename("a", "new\nline"), ErrInvalidName)
	})

	t.Run("moves the live handle", func(t *testing.T) {
		require.NoError(t, r.Rename("a", "c"))
		_, ok := r.Get("a")
		assert.False(t, ok)

		moved, ok := r.Get("c")
		require.True(t, ok)
		assert.Same(t, s, moved)
		assert.Equal(t, "c", moved.Name())
		assert.Equal(t, h.Spawned()[0].ID(), moved.Terminal().ID())
	})
}

func TestRecordLastRun(t *testing.T) {
	r, _ := newTestRegistry(t, true)
	s, _, err := r.GetOrCreate("x", CreateOptions{})
	require.NoError(t, err)

	_, ok := s.LastRun()
	assert.False(t, ok)

	code := 0
	s.Record(Run{Command: "ls", Output: "file", ExitCode: &code, Captured: true})
	run, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, "ls", run.Command)
	assert.False(t, run.At.IsZero())
}

func TestRegistryMetrics(t *testing.T) {
	h := hosttest.NewHost(true)
	m := metrics.New()
	r := NewRegistry(h, WithMetrics(m))
	defer r.Close()

	_, _, err := r.GetOrCreate("one", CreateOptions{})
	require.NoError(t, err)
	h.Spawned()[0].Exit()
	r.List()

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if metric.GetCounter() != nil {
				values[f.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["termtools_sessions_created_total"])
	assert.Equal(t, 1.0, values["termtools_sessions_reaped_total"])
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"build", false},
		{"Dev Server", false},
		{"api:8080", false},
		{"a.b_c-d", false},
		{"frontend/web", false},
		{"Build #1", false},
		{"ビルド", false},
		{"_scratch", false},
		{"npm (dev)", false},
		{"-dash", false},
		{"semi;colon", false},
		{strings.Repeat("ß", 128), false},
		{"", true},
		{"line\nbreak", true},
		{"carriage\rreturn", true},
		{"esc\x1b[31m", true},
		{"nul\x00", true},
		{"bad utf8 \xff", true},
		{strings.Repeat("x", 129), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
