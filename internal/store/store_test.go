package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"docpipe/internal/store"
	"docpipe/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("docpipe_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newJob(userID uuid.UUID) *models.UploadJob {
	now := time.Now().UTC()
	return &models.UploadJob{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       models.SourceSpreadsheet,
		SourceRef:  "ref-" + uuid.NewString(),
		SourceName: "sales.csv",
		Status:     models.JobStatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// --- Jobs ---

func TestJob_CreateGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusUploaded, got.Status)
	assert.Nil(t, got.CleanedRef)
}

func TestJob_GetWrongUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.ID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_UpdateStatusOptions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
		store.WithStage(models.StageAnalyzing),
		store.WithError("AI_TRANSIENT", "model service unavailable"))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Stage)
	assert.Equal(t, models.StageAnalyzing, *got.Stage)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, "AI_TRANSIENT", *got.ErrorCode)

	// Resume clears the failure and checkpoints the cleaned dataset.
	err = s.UpdateJobStatus(ctx, job.ID, models.JobStatusAnalyzing,
		store.WithCleanedRef("abc123"), store.ClearError())
	require.NoError(t, err)

	got, err = s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Nil(t, got.ErrorCode)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.CleanedRef)
	assert.Equal(t, "abc123", *got.CleanedRef)
}

func TestJob_UpdateStatusExpectedStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusCleaning,
		store.WithExpectedStatus(models.JobStatusUploaded))
	require.NoError(t, err)

	// A writer still holding the old status loses the swap.
	err = s.UpdateJobStatus(ctx, job.ID, models.JobStatusCancelled,
		store.WithExpectedStatus(models.JobStatusUploaded))
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	got, err := s.GetJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCleaning, got.Status, "losing write changed nothing")
}

func TestJob_UpdateStatusNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.UpdateJobStatus(context.Background(), uuid.New(), models.JobStatusCleaning)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_ListFilterAndPaging(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateJob(ctx, newJob(userID)))
	}
	other := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, other))

	jobs, total, err := s.ListJobs(ctx, store.JobFilter{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 3)

	jobs, total, err = s.ListJobs(ctx, store.JobFilter{UserID: userID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 2)

	jobs, _, err = s.ListJobs(ctx, store.JobFilter{UserID: userID, Status: models.JobStatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestJob_DeleteCascadesArtifacts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.CreateArtifact(ctx, &models.GeneratedArtifact{
		ID:        uuid.New(),
		JobID:     job.ID,
		Kind:      models.ArtifactChartImage,
		Ref:       "chartref",
		Warnings:  []string{},
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteJob(ctx, job.ID, userID))

	artifacts, err := s.ListArtifactsByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	err = s.DeleteJob(ctx, job.ID, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Artifacts ---

func TestArtifact_ByRefScopedToOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	userID := uuid.New()
	job := newJob(userID)
	require.NoError(t, s.CreateJob(ctx, job))

	artifact := &models.GeneratedArtifact{
		ID:        uuid.New(),
		JobID:     job.ID,
		Kind:      models.ArtifactMinutes,
		Ref:       "minutesref",
		Warnings:  []string{"transcript truncated"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateArtifact(ctx, artifact))

	got, err := s.GetArtifactByRef(ctx, "minutesref", userID)
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactMinutes, got.Kind)
	assert.Equal(t, []string{"transcript truncated"}, got.Warnings)

	_, err = s.GetArtifactByRef(ctx, "minutesref", uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- AI responses ---

func TestAIResponse_FirstWriterWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first := &models.AIResponse{
		Fingerprint: "fp1",
		TemplateID:  "trend-summary@v1",
		Task:        models.TaskTrendSummary,
		Provider:    "deepseek",
		Response:    `{"trends":[]}`,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.PutAIResponse(ctx, first))

	second := *first
	second.Response = `{"trends":[{"metric":"x"}]}`
	require.NoError(t, s.PutAIResponse(ctx, &second))

	got, err := s.GetAIResponse(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, first.Response, got.Response, "first insert wins")
}

func TestAIResponse_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetAIResponse(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- API keys ---

func TestAPIKey_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	n, err := s.CountAPIKeys(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	userID := uuid.New()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "ci",
		KeyHash:   "$2a$10$fakehash",
		KeyPrefix: "dp_abcd",
		Scopes:    []string{"uploads:write"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "dp_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, userID, keys[0].UserID)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, userID))

	keys, err = s.GetAPIKeyByPrefix(ctx, "dp_abcd")
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = s.RevokeAPIKey(ctx, key.ID, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
