package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docpipe/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return n, nil
}

// --- Jobs ---

const jobColumns = `id, user_id, kind, source_ref, source_name, status, stage,
	error_code, error_message, cleaned_ref, created_at, updated_at`

func scanJob(row pgx.Row) (*models.UploadJob, error) {
	var j models.UploadJob
	err := row.Scan(&j.ID, &j.UserID, &j.Kind, &j.SourceRef, &j.SourceName, &j.Status,
		&j.Stage, &j.ErrorCode, &j.ErrorMessage, &j.CleanedRef, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.UploadJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, kind, source_ref, source_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.UserID, job.Kind, job.SourceRef, job.SourceName, job.Status,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.UploadJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.UploadJob, int, error) {
	where := `WHERE user_id = $1`
	args := []any{filter.UserID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.UploadJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	p := ApplyJobUpdateOptions(opts...)

	query := `UPDATE jobs SET status = $1, updated_at = NOW()`
	args := []any{status}

	if p.Stage != nil {
		args = append(args, *p.Stage)
		query += fmt.Sprintf(", stage = $%d", len(args))
	}
	if p.ErrorCode != nil {
		args = append(args, *p.ErrorCode)
		query += fmt.Sprintf(", error_code = $%d", len(args))
	}
	if p.ErrorMessage != nil {
		args = append(args, *p.ErrorMessage)
		query += fmt.Sprintf(", error_message = $%d", len(args))
	}
	if p.CleanedRef != nil {
		args = append(args, *p.CleanedRef)
		query += fmt.Sprintf(", cleaned_ref = $%d", len(args))
	}
	if p.ClearError {
		query += ", error_code = NULL, error_message = NULL"
	}

	args = append(args, id)
	query += fmt.Sprintf(" WHERE id = $%d", len(args))
	if p.ExpectedStatus != nil {
		args = append(args, *p.ExpectedStatus)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if p.ExpectedStatus != nil {
			return ErrStatusConflict
		}
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Artifacts ---

func (s *PostgresStore) CreateArtifact(ctx context.Context, artifact *models.GeneratedArtifact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (id, job_id, kind, ref, warnings, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		artifact.ID, artifact.JobID, artifact.Kind, artifact.Ref, artifact.Warnings, artifact.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArtifactsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.GeneratedArtifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, kind, ref, warnings, created_at
		 FROM artifacts WHERE job_id = $1 ORDER BY created_at ASC, kind ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*models.GeneratedArtifact
	for rows.Next() {
		var a models.GeneratedArtifact
		if err := rows.Scan(&a.ID, &a.JobID, &a.Kind, &a.Ref, &a.Warnings, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// GetArtifactByRef resolves an artifact by blob ref, scoped to the owner of
// its job so one user cannot read another user's outputs.
func (s *PostgresStore) GetArtifactByRef(ctx context.Context, ref string, userID uuid.UUID) (*models.GeneratedArtifact, error) {
	var a models.GeneratedArtifact
	err := s.pool.QueryRow(ctx,
		`SELECT a.id, a.job_id, a.kind, a.ref, a.warnings, a.created_at
		 FROM artifacts a JOIN jobs j ON j.id = a.job_id
		 WHERE a.ref = $1 AND j.user_id = $2
		 ORDER BY a.created_at DESC LIMIT 1`, ref, userID).
		Scan(&a.ID, &a.JobID, &a.Kind, &a.Ref, &a.Warnings, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact by ref: %w", err)
	}
	return &a, nil
}

// --- AI responses ---

func (s *PostgresStore) GetAIResponse(ctx context.Context, fingerprint string) (*models.AIResponse, error) {
	var r models.AIResponse
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, template_id, task, provider, response, created_at
		 FROM ai_responses WHERE fingerprint = $1`, fingerprint).
		Scan(&r.Fingerprint, &r.TemplateID, &r.Task, &r.Provider, &r.Response, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ai response: %w", err)
	}
	return &r, nil
}

// PutAIResponse records a validated model response. Concurrent writers for
// the same fingerprint race benignly: the first insert wins and the rest
// are no-ops, so a fingerprint never changes payload once stored.
func (s *PostgresStore) PutAIResponse(ctx context.Context, resp *models.AIResponse) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_responses (fingerprint, template_id, task, provider, response, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		resp.Fingerprint, resp.TemplateID, resp.Task, resp.Provider, resp.Response, resp.CreatedAt)
	if err != nil {
		return fmt.Errorf("put ai response: %w", err)
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
