package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/apperr"
	"place-discovery-service/internal/csvcodec"
	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/repository/postgresql"
)

const (
	DefaultLimit = 60

	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultPreviewLimit = 50
	MaxPreviewLimit     = 500
)

// JobRepository is implemented by postgresql.JobRepository.
type JobRepository interface {
	Create(ctx context.Context, ownerID string, params entity.SearchParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, limit int) ([]entity.JobSummary, error)
	Fail(ctx context.Context, id uuid.UUID, errText string) error
}

// JobQueue is the enqueue half of Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Registry is implemented by postgresql.RegistryRepository.
type Registry interface {
	WithTx(ctx context.Context, fn func(postgresql.RegistryInserter) error) error
}

type JobService struct {
	repo     JobRepository
	queue    JobQueue
	creds    CredentialResolver
	registry Registry
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewJobService(repo JobRepository, queue JobQueue, creds CredentialResolver, registry Registry, log logrus.FieldLogger) *JobService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &JobService{
		repo:     repo,
		queue:    queue,
		creds:    creds,
		registry: registry,
		validate: newValidator(),
		log:      log,
	}
}

// CreateJobRequest is the search request accepted by CreateJob. Lat and
// Lng are pointers so that 0 is distinguishable from absent.
type CreateJobRequest struct {
	Query        string   `json:"query"         validate:"required,max=500"`
	Lat          *float64 `json:"lat"           validate:"required,gte=-90,lte=90"`
	Lng          *float64 `json:"lng"           validate:"required,gte=-180,lte=180"`
	RadiusMeters int      `json:"radius_meters" validate:"gte=50,lte=50000"`
	Limit        *int     `json:"limit"         validate:"omitempty,gte=1,lte=200"`
	Name         string   `json:"name"          validate:"max=200"`

	// OwnerID identifies the caller for credential lookup.
	OwnerID string `json:"-" validate:"-"`
}

// CreateJob validates req, resolves the caller's provider credential and
// stores a queued job. It returns as soon as the job is enqueued.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (uuid.UUID, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.Name = strings.TrimSpace(req.Name)

	if err := s.validate.Struct(req); err != nil {
		return uuid.Nil, validationError(err)
	}

	cred, err := s.creds.Resolve(ctx, req.OwnerID)
	if err != nil {
		return uuid.Nil, apperr.Persistence("resolve provider credential", err)
	}
	if cred == "" {
		return uuid.Nil, apperr.MissingCredential()
	}

	params := entity.SearchParams{
		Query:        req.Query,
		Lat:          *req.Lat,
		Lng:          *req.Lng,
		RadiusMeters: req.RadiusMeters,
		Limit:        DefaultLimit,
		Name:         req.Name,
	}
	if req.Limit != nil {
		params.Limit = *req.Limit
	}

	id, err := s.repo.Create(ctx, req.OwnerID, params)
	if err != nil {
		return uuid.Nil, apperr.MapDBError(err)
	}

	if err := s.queue.Enqueue(ctx, id.String()); err != nil {
		s.log.WithField("job_id", id).WithError(err).Error("enqueue failed")
		if ferr := s.repo.Fail(ctx, id, "could not be scheduled"); ferr != nil {
			s.log.WithField("job_id", id).WithError(ferr).Error("mark unscheduled job failed")
		}
		return uuid.Nil, apperr.Persistence("schedule job", err)
	}

	s.log.WithFields(logrus.Fields{"job_id": id, "limit": params.Limit, "radius": params.RadiusMeters}).Info("job queued")
	return id, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.MapDBError(err)
	}
	return job, nil
}

// ListJobs returns recent jobs newest first. limit <= 0 selects the
// default page size; larger values are capped.
func (s *JobService) ListJobs(ctx context.Context, limit int) ([]entity.JobSummary, error) {
	limit = clamp(limit, DefaultListLimit, MaxListLimit)

	jobs, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, apperr.MapDBError(err)
	}
	return jobs, nil
}

// GetJobRowCount returns the number of snapshot rows, excluding the header.
// A job without a snapshot has zero rows.
func (s *JobService) GetJobRowCount(ctx context.Context, id uuid.UUID) (int, error) {
	rows, err := s.snapshotRows(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// RecordPage is one window of snapshot rows. Limit is the page size
// actually applied.
type RecordPage struct {
	Records []csvcodec.Row
	Limit   int
	Offset  int
	Total   int
}

func (s *JobService) PreviewJobRecords(ctx context.Context, id uuid.UUID, limit, offset int) (RecordPage, error) {
	if offset < 0 {
		return RecordPage{}, apperr.ValidationField("offset", "offset must not be negative")
	}
	page := RecordPage{
		Limit:  clamp(limit, DefaultPreviewLimit, MaxPreviewLimit),
		Offset: offset,
	}

	rows, err := s.snapshotRows(ctx, id)
	if err != nil {
		return RecordPage{}, err
	}
	page.Total = len(rows)
	if offset >= len(rows) {
		page.Records = []csvcodec.Row{}
		return page, nil
	}
	end := offset + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	page.Records = rows[offset:end]
	return page, nil
}

type ImportResult struct {
	Inserted int `json:"inserted"`
	Total    int `json:"total"`
}

// ImportJob inserts every snapshot row with a non-empty name into the
// registry as a new customer. All inserts share one transaction.
func (s *JobService) ImportJob(ctx context.Context, id uuid.UUID) (ImportResult, error) {
	rows, err := s.snapshotRows(ctx, id)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Total: len(rows)}
	if len(rows) == 0 {
		return res, nil
	}

	inserted := 0
	err = s.registry.WithTx(ctx, func(tx postgresql.RegistryInserter) error {
		for i, row := range rows {
			name := strings.TrimSpace(row[csvcodec.ColName])
			if name == "" {
				continue
			}
			if err := tx.Insert(ctx, registryCustomer(id, name, row)); err != nil {
				return fmt.Errorf("insert row %d: %w", i+1, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		s.log.WithField("job_id", id).WithError(err).Warn("import rolled back")
		return ImportResult{}, apperr.MapDBError(err)
	}

	res.Inserted = inserted
	s.log.WithFields(logrus.Fields{"job_id": id, "inserted": res.Inserted, "total": res.Total}).Info("job imported")
	return res, nil
}

func registryCustomer(jobID uuid.UUID, name string, row csvcodec.Row) entity.RegistryCustomer {
	c := entity.RegistryCustomer{
		Name:     name,
		Locality: row[csvcodec.ColLocality],
		Website:  row[csvcodec.ColWebsite],
		Phone:    row[csvcodec.ColPhone],
		Status:   entity.DefaultRegistryStatus,
		JobID:    jobID,
	}
	if cats := csvcodec.SplitList(row[csvcodec.ColCategories]); len(cats) > 0 {
		c.Category = cats[0]
	}
	return c
}

// snapshotRows loads the job and decodes its snapshot; nil snapshot -> no rows.
func (s *JobService) snapshotRows(ctx context.Context, id uuid.UUID) ([]csvcodec.Row, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Snapshot == nil {
		return nil, nil
	}
	rows, err := csvcodec.Decode(*job.Snapshot)
	if err != nil {
		return nil, apperr.Internal("stored snapshot is unreadable", err)
	}
	return rows, nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError reports the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid request")
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperr.ValidationField(field, field+" is required")
	case "gte", "min":
		return apperr.ValidationField(field, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
	case "lte", "max":
		if fe.Kind() == reflect.String {
			return apperr.ValidationField(field, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		}
		return apperr.ValidationField(field, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
	default:
		return apperr.ValidationField(field, field+" is invalid")
	}
}
