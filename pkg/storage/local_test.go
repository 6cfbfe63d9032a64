package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocalStorage_PutOpen(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	jobID := uuid.New()

	info, err := s.Put(ctx, jobID, "original.csv", strings.NewReader("a;b\n1;2\n"))
	require.NoError(t, err)
	assert.Equal(t, "original.csv", info.Name)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, filepath.Join(s.basePath, jobID.String(), "original.csv"), info.Path)

	rc, opened, err := s.Open(ctx, jobID, "original.csv")
	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;2\n", readAll(t, rc))
	assert.Equal(t, info.Size, opened.Size)

	t.Run("overwrite replaces content", func(t *testing.T) {
		_, err := s.Put(ctx, jobID, "original.csv", strings.NewReader("x"))
		require.NoError(t, err)

		rc, _, err := s.Open(ctx, jobID, "original.csv")
		require.NoError(t, err)
		assert.Equal(t, "x", readAll(t, rc))
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(s.basePath, jobID.String()))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), e.Name())
		}
	})
}

func TestLocalStorage_JobsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	a, b := uuid.New(), uuid.New()

	_, err := s.Put(ctx, a, "ventas_limpio.csv", strings.NewReader("job a"))
	require.NoError(t, err)
	_, err = s.Put(ctx, b, "ventas_limpio.csv", strings.NewReader("job b"))
	require.NoError(t, err)

	rc, _, err := s.Open(ctx, a, "ventas_limpio.csv")
	require.NoError(t, err)
	assert.Equal(t, "job a", readAll(t, rc))
}

func TestLocalStorage_OpenMissing(t *testing.T) {
	s := newTestStorage(t)

	_, _, err := s.Open(context.Background(), uuid.New(), "report.xlsx")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	jobID := uuid.New()

	_, err := s.Put(ctx, jobID, "_upload_utf8.csv", strings.NewReader("tmp"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, jobID, "_upload_utf8.csv"))
	_, _, err = s.Open(ctx, jobID, "_upload_utf8.csv")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deleting again is a no-op
	assert.NoError(t, s.Delete(ctx, jobID, "_upload_utf8.csv"))
}

func TestLocalStorage_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	jobID := uuid.New()

	_, err := s.Put(ctx, jobID, metaFile, strings.NewReader("{}"))
	assert.Error(t, err)

	info, err := s.Put(ctx, jobID, "../escape.csv", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.basePath, jobID.String()), filepath.Dir(info.Path))
}

func TestLocalStorage_Jobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }

	jobID := uuid.New()
	info, err := s.CreateJob(ctx, jobID, "ventas.csv")
	require.NoError(t, err)
	assert.Equal(t, created, info.CreatedAt)

	got, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "ventas.csv", got.SourceName)
	assert.True(t, created.Equal(got.CreatedAt))

	// A directory without metadata is still listed
	orphan := uuid.New()
	_, err = s.Put(ctx, orphan, "original.csv", strings.NewReader("x"))
	require.NoError(t, err)

	// Non-job entries are ignored
	require.NoError(t, os.Mkdir(filepath.Join(s.basePath, "not-a-job"), 0755))

	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{jobID, orphan}, ids)

	require.NoError(t, s.DeleteJob(ctx, jobID))
	_, err = s.GetJob(ctx, jobID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNew(t *testing.T) {
	_, err := New(&Config{LocalPath: ""})
	assert.Error(t, err)

	st, err := New(&Config{LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, st)
}
