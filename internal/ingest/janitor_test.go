package ingest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/company-ingest/internal/model"
)

func TestNewJanitor_BadSchedule(t *testing.T) {
	h := newHarness(t)

	_, err := NewJanitor("every now and then", time.Hour, h.jobs, h.store, testLogger())
	assert.Error(t, err)
}

func TestJanitor_Sweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	j, err := NewJanitor("@every 1h", time.Hour, h.jobs, h.store, testLogger())
	require.NoError(t, err)
	now := time.Now()
	j.now = func() time.Time { return now }

	old := h.upload(t, "ada@example.com", csvHeader)
	fresh := h.upload(t, "ada@example.com", csvHeader)
	active := h.upload(t, "ada@example.com", csvHeader)

	require.NoError(t, h.jobs.Finish(ctx, old.ID, model.JobSucceeded, model.JobProgress{}, "", now.Add(-2*time.Hour)))
	require.NoError(t, h.jobs.Finish(ctx, fresh.ID, model.JobSucceeded, model.JobProgress{}, "", now.Add(-10*time.Minute)))

	removed, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old.StoredPath)
	assert.True(t, os.IsNotExist(err), "expired upload should be deleted")
	for _, keep := range []*model.IngestJob{fresh, active} {
		_, err = os.Stat(keep.StoredPath)
		assert.NoError(t, err, "upload of job %s should be kept", keep.ID)
	}

	got, err := h.jobs.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, got.StoredPath)
	assert.Equal(t, model.JobSucceeded, got.Status)

	// Second sweep has nothing left to do.
	removed, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestJanitor_StartStop(t *testing.T) {
	h := newHarness(t)

	j, err := NewJanitor("@every 1h", time.Hour, h.jobs, h.store, testLogger())
	require.NoError(t, err)

	j.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j.Stop(ctx)
}
