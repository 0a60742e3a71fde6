package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storages(t *testing.T) map[string]TranscriptStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]TranscriptStorage{
		"memory": NewMemoryStorage(0),
		"file":   fs,
	}
}

func TestTranscriptStorage(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Create("t1"))
			assert.Error(t, s.Create("t1"), "duplicate create")

			require.NoError(t, s.Append("t1", []byte("hello ")))
			require.NoError(t, s.Append("t1", []byte("world")))

			all, err := s.ReadFrom("t1", 0)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(all))

			tail, err := s.ReadFrom("t1", 6)
			require.NoError(t, err)
			assert.Equal(t, "world", string(tail))

			past, err := s.ReadFrom("t1", 100)
			require.NoError(t, err)
			assert.Empty(t, past)

			size, err := s.Size("t1")
			require.NoError(t, err)
			assert.EqualValues(t, 11, size)

			require.NoError(t, s.Delete("t1"))
			_, err = s.Size("t1")
			assert.Error(t, err)
			assert.Error(t, s.Append("t1", []byte("x")))
		})
	}
}

func TestMemoryStorageTrimKeepsAbsoluteOffsets(t *testing.T) {
	s := NewMemoryStorage(8)
	require.NoError(t, s.Create("t"))
	require.NoError(t, s.Append("t", []byte("0123456789")))

	all, err := s.ReadFrom("t", 0)
	require.NoError(t, err)
	assert.Equal(t, "23456789", string(all))

	size, err := s.Size("t")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	from, err := s.ReadFrom("t", 7)
	require.NoError(t, err)
	assert.Equal(t, "789", string(from))
}
