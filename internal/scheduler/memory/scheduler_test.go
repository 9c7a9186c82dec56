package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/originwatch/originwatch/pkg/lister"
)

func TestGetOrCreateListerIsStable(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.GetOrCreateLister(ctx, "gitea", "codeberg")
	require.NoError(t, err)
	second, err := s.GetOrCreateLister(ctx, "gitea", "codeberg")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := s.GetOrCreateLister(ctx, "gitea", "try.gitea.io")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestStateRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	info, err := s.GetOrCreateLister(ctx, "gitea", "codeberg")
	require.NoError(t, err)
	assert.Nil(t, info.CurrentState)

	require.NoError(t, s.UpdateListerState(ctx, info.ID, []byte(`{"cursor":"5"}`)))

	info, err = s.GetOrCreateLister(ctx, "gitea", "codeberg")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"cursor":"5"}`), info.CurrentState)
	assert.Equal(t, 1, s.StateWrites())
}

func TestRecordListedOriginsIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	info, err := s.GetOrCreateLister(ctx, "gitea", "codeberg")
	require.NoError(t, err)

	now := time.Now()
	batch := []lister.Origin{
		{ListerID: info.ID, VisitType: "git", URL: "https://forge.example/a.git"},
		{ListerID: info.ID, VisitType: "git", URL: "https://forge.example/b.git", LastUpdate: &now},
	}

	count, err := s.RecordListedOrigins(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-reporting updates, never duplicates.
	count, err = s.RecordListedOrigins(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, s.Origins(), 2)
	assert.Equal(t, 2, s.UpsertCalls())

	// Same URL under a different visit type is a distinct origin.
	_, err = s.RecordListedOrigins(ctx, []lister.Origin{
		{ListerID: info.ID, VisitType: "hg", URL: "https://forge.example/a.git"},
	})
	require.NoError(t, err)
	assert.Len(t, s.Origins(), 3)
}
