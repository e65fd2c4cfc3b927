package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-chat/internal/models"
)

func testTranscript(id, projectID string) *models.Transcript {
	return &models.Transcript{
		ID:        id,
		ProjectID: projectID,
		Title:     "Weekly sync",
		FullText:  "We talked through the release checklist and the open incidents.",
		Segments: []models.TranscriptSegment{
			{StartTime: 0, EndTime: 30, Text: "We talked through the release checklist.", Speaker: "Dana"},
			{StartTime: 30, EndTime: 55, Text: "And the open incidents.", Speaker: "Sam"},
		},
		Duration:  55,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestRedisTranscriptRepository_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisTranscriptRepository(client)
	ctx := context.Background()

	transcript := testTranscript("trepo-save-get", "")
	defer repo.Delete(ctx, transcript.ID)

	require.NoError(t, repo.Save(ctx, transcript))

	stored, err := repo.Get(ctx, transcript.ID)
	require.NoError(t, err)
	assert.Equal(t, transcript.ID, stored.ID)
	assert.Equal(t, transcript.Title, stored.Title)
	assert.Len(t, stored.Segments, 2)
	assert.Equal(t, "Dana", stored.Segments[0].Speaker)
}

func TestRedisTranscriptRepository_Get_NotFound(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisTranscriptRepository(client)

	_, err := repo.Get(context.Background(), "no-such-transcript")
	assert.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRedisTranscriptRepository_ListByProject(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisTranscriptRepository(client)
	ctx := context.Background()

	projectID := "trepo-test-project"
	first := testTranscript("trepo-list-1", projectID)
	second := testTranscript("trepo-list-2", projectID)
	other := testTranscript("trepo-list-other", "some-other-project")
	defer repo.Delete(ctx, first.ID)
	defer repo.Delete(ctx, second.ID)
	defer repo.Delete(ctx, other.ID)

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, other))

	listed, err := repo.ListByProject(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, transcript := range listed {
		assert.Equal(t, projectID, transcript.ProjectID)
	}

	empty, err := repo.ListByProject(ctx, "project-with-no-transcripts")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisTranscriptRepository_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisTranscriptRepository(client)
	ctx := context.Background()

	projectID := "trepo-delete-project"
	transcript := testTranscript("trepo-delete", projectID)
	require.NoError(t, repo.Save(ctx, transcript))

	require.NoError(t, repo.Delete(ctx, transcript.ID))

	_, err := repo.Get(ctx, transcript.ID)
	assert.True(t, IsNotFound(err))

	// The project index must not keep the deleted ID.
	listed, err := repo.ListByProject(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
