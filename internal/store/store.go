package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"docpipe/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrStatusConflict is returned by UpdateJobStatus when WithExpectedStatus
// was given and the row no longer holds that status: another writer moved
// the job first and the transition must not be applied.
var ErrStatusConflict = errors.New("job status changed concurrently")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	CountAPIKeys(ctx context.Context) (int, error)

	CreateJob(ctx context.Context, job *models.UploadJob) error
	GetJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.UploadJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.UploadJob, int, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	DeleteJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateArtifact(ctx context.Context, artifact *models.GeneratedArtifact) error
	ListArtifactsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.GeneratedArtifact, error)
	GetArtifactByRef(ctx context.Context, ref string, userID uuid.UUID) (*models.GeneratedArtifact, error)

	GetAIResponse(ctx context.Context, fingerprint string) (*models.AIResponse, error)
	PutAIResponse(ctx context.Context, resp *models.AIResponse) error
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	UserID uuid.UUID
	Status string
	Kind   models.SourceKind
	Page   int
	Limit  int
}

// JobUpdateParams collects the optional fields of a status update. Exported
// so fake stores in tests can apply the same options the real one does.
type JobUpdateParams struct {
	Stage          *string
	ErrorCode      *string
	ErrorMessage   *string
	CleanedRef     *string
	ClearError     bool
	ExpectedStatus *string
}

type JobUpdateOption func(*JobUpdateParams)

// ApplyJobUpdateOptions folds the options into a params struct.
func ApplyJobUpdateOptions(opts ...JobUpdateOption) JobUpdateParams {
	var p JobUpdateParams
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithStage records which pipeline stage the job is in (or failed at).
func WithStage(stage string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.Stage = &stage
	}
}

// WithError records a machine-readable code and a human-readable message.
func WithError(code, msg string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ErrorCode = &code
		p.ErrorMessage = &msg
	}
}

// WithCleanedRef checkpoints the cleaned-dataset blob so a later resume can
// skip the cleaning stage.
func WithCleanedRef(ref string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.CleanedRef = &ref
	}
}

// ClearError wipes a previous failure's code and message, used on resume.
func ClearError() JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ClearError = true
	}
}

// WithExpectedStatus makes the update a compare-and-swap: it only applies
// while the row still holds the given status, and ErrStatusConflict is
// returned otherwise. Every state-machine transition uses this so a slow
// worker can never overwrite a terminal row.
func WithExpectedStatus(status string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ExpectedStatus = &status
	}
}
