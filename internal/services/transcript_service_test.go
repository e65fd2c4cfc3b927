package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"transcript-chat/internal/models"
	"transcript-chat/internal/repositories"
)

func newTranscriptFixture() (*TranscriptService, *MockTranscriptRepository, *MockVectorRepository, *MockJobRepository) {
	transcripts := new(MockTranscriptRepository)
	vectors := new(MockVectorRepository)
	jobs := new(MockJobRepository)
	service := NewTranscriptService(transcripts, vectors, jobs, discardLogger())
	return service, transcripts, vectors, jobs
}

func TestTranscriptService_SaveNewTranscript(t *testing.T) {
	service, transcripts, _, jobs := newTranscriptFixture()

	transcripts.On("Get", mock.Anything, mock.Anything).
		Return(nil, repositories.TranscriptNotFoundError("new")).Once()
	transcripts.On("Save", mock.Anything, mock.AnythingOfType("*models.Transcript")).Return(nil).Once()

	var enqueued *repositories.IndexJob
	jobs.On("EnqueueJob", mock.Anything, mock.AnythingOfType("*repositories.IndexJob")).
		Run(func(args mock.Arguments) { enqueued = args.Get(1).(*repositories.IndexJob) }).
		Return(nil).Once()

	transcript := &models.Transcript{
		Title:    "Standup",
		FullText: "Alice gave a status update.",
	}
	job, err := service.SaveTranscript(context.Background(), transcript)
	require.NoError(t, err)

	assert.NotEmpty(t, transcript.ID, "an ID is assigned on first save")
	assert.False(t, transcript.CreatedAt.IsZero())
	assert.False(t, transcript.UpdatedAt.IsZero())

	require.NotNil(t, enqueued)
	assert.Same(t, enqueued, job)
	assert.Equal(t, transcript.ID, job.TranscriptID)
	assert.False(t, job.Reindex)
	assert.Equal(t, repositories.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.NotEmpty(t, job.ID)
}

func TestTranscriptService_SaveExistingTranscriptReindexes(t *testing.T) {
	service, transcripts, _, jobs := newTranscriptFixture()

	existing := &models.Transcript{ID: "t-1", Title: "Standup", FullText: "old text"}
	transcripts.On("Get", mock.Anything, "t-1").Return(existing, nil).Once()
	transcripts.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	jobs.On("EnqueueJob", mock.Anything, mock.Anything).Return(nil).Once()

	job, err := service.SaveTranscript(context.Background(), &models.Transcript{
		ID:       "t-1",
		Title:    "Standup",
		FullText: "revised text",
	})
	require.NoError(t, err)
	assert.True(t, job.Reindex, "overwriting an existing transcript replaces its chunks")
}

func TestTranscriptService_SaveInvalidTranscript(t *testing.T) {
	service, transcripts, _, jobs := newTranscriptFixture()

	_, err := service.SaveTranscript(context.Background(), &models.Transcript{FullText: "no title"})
	require.Error(t, err)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	transcripts.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	jobs.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
}

func TestTranscriptService_EnqueueFailure(t *testing.T) {
	service, transcripts, _, jobs := newTranscriptFixture()

	transcripts.On("Get", mock.Anything, mock.Anything).
		Return(nil, repositories.TranscriptNotFoundError("x")).Once()
	transcripts.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
	jobs.On("EnqueueJob", mock.Anything, mock.Anything).
		Return(errors.New("redis down")).Once()

	_, err := service.SaveTranscript(context.Background(), &models.Transcript{
		Title:    "Standup",
		FullText: "some text",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexing could not be queued")
	transcripts.AssertCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestTranscriptService_DeleteTranscript(t *testing.T) {
	t.Run("removes chunks then record", func(t *testing.T) {
		service, transcripts, vectors, _ := newTranscriptFixture()
		vectors.On("DeleteTranscriptChunks", mock.Anything, "t-1").Return(3, nil).Once()
		transcripts.On("Delete", mock.Anything, "t-1").Return(nil).Once()

		require.NoError(t, service.DeleteTranscript(context.Background(), "t-1"))
		transcripts.AssertExpectations(t)
	})

	t.Run("keeps record when chunk deletion fails", func(t *testing.T) {
		service, transcripts, vectors, _ := newTranscriptFixture()
		vectors.On("DeleteTranscriptChunks", mock.Anything, "t-1").
			Return(0, errors.New("collection unavailable")).Once()

		err := service.DeleteTranscript(context.Background(), "t-1")
		require.Error(t, err)
		transcripts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestTranscriptService_RequestReindex(t *testing.T) {
	t.Run("enqueues for existing transcript", func(t *testing.T) {
		service, transcripts, _, jobs := newTranscriptFixture()
		transcripts.On("Get", mock.Anything, "t-1").
			Return(&models.Transcript{ID: "t-1", Title: "Standup", FullText: "text"}, nil).Once()

		var enqueued *repositories.IndexJob
		jobs.On("EnqueueJob", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { enqueued = args.Get(1).(*repositories.IndexJob) }).
			Return(nil).Once()

		job, err := service.RequestReindex(context.Background(), "t-1")
		require.NoError(t, err)
		assert.True(t, job.Reindex)
		assert.Equal(t, "t-1", enqueued.TranscriptID)
	})

	t.Run("missing transcript", func(t *testing.T) {
		service, transcripts, _, jobs := newTranscriptFixture()
		transcripts.On("Get", mock.Anything, "nope").
			Return(nil, repositories.TranscriptNotFoundError("nope")).Once()

		_, err := service.RequestReindex(context.Background(), "nope")
		require.Error(t, err)
		jobs.AssertNotCalled(t, "EnqueueJob", mock.Anything, mock.Anything)
	})
}

func TestTranscriptService_IndexQueueStats(t *testing.T) {
	service, _, vectors, jobs := newTranscriptFixture()

	jobs.On("QueueLength", mock.Anything).Return(4, nil).Once()
	vectors.On("Stats", mock.Anything).Return(&repositories.StoreStats{
		ChunkCount:      120,
		TranscriptCount: 6,
	}, nil).Once()

	stats, err := service.IndexQueueStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats["pending_jobs"])
	assert.Equal(t, 120, stats["chunk_count"])
	assert.Equal(t, 6, stats["transcript_count"])
}

func TestTranscriptService_Passthroughs(t *testing.T) {
	service, transcripts, _, jobs := newTranscriptFixture()

	stored := &models.Transcript{ID: "t-1", Title: "Standup", FullText: "text"}
	transcripts.On("Get", mock.Anything, "t-1").Return(stored, nil).Once()
	got, err := service.GetTranscript(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Same(t, stored, got)

	listed := []*models.Transcript{stored}
	transcripts.On("ListByProject", mock.Anything, "p-1").Return(listed, nil).Once()
	fromProject, err := service.ListProjectTranscripts(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, listed, fromProject)

	job := &repositories.IndexJob{ID: "job-1"}
	jobs.On("GetJob", mock.Anything, "job-1").Return(job, nil).Once()
	gotJob, err := service.GetIndexJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Same(t, job, gotJob)
}
