package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/apperr"
	"place-discovery-service/internal/csvcodec"
	"place-discovery-service/internal/dedup"
	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/geo"
	"place-discovery-service/internal/places"
	"place-discovery-service/internal/repository/postgresql"
	"place-discovery-service/internal/service"
)

// Progress checkpoints of a run.
const (
	ProgressStarted  = 5
	ProgressSearched = 60
	ProgressDeduped  = 75
	ProgressStored   = 90
)

const maxErrorLen = 500

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID, progress int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	SaveSnapshot(ctx context.Context, id uuid.UUID, snapshot string) error
	Complete(ctx context.Context, id uuid.UUID, derivedName string) error
	Fail(ctx context.Context, id uuid.UUID, errText string) error
}

// Archiver receives a copy of every completed snapshot.
type Archiver interface {
	Archive(ctx context.Context, jobID uuid.UUID, snapshot string) error
}

var errNoCredential = errors.New("no provider credential available for job owner")

// ErrNotStarted marks a Process failure that happened before the job left
// queued, typically a transient database error. The job is unchanged.
var ErrNotStarted = errors.New("job not started")

type Processor struct {
	repo     JobRepo
	searcher places.Searcher
	creds    service.CredentialResolver
	archiver Archiver
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewProcessor(repo JobRepo, searcher places.Searcher, creds service.CredentialResolver, log logrus.FieldLogger) *Processor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{
		repo:     repo,
		searcher: searcher,
		creds:    creds,
		log:      log,
		now:      time.Now,
	}
}

// WithArchiver enables snapshot archiving; a failed upload is logged and
// does not affect the job.
func (p *Processor) WithArchiver(a Archiver) *Processor {
	p.archiver = a
	return p
}

// Process runs one job. A job that is no longer queued was already picked
// up (e.g. a re-delivered queue item) and is skipped.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		p.log.WithField("job_id", jobID).WithError(err).Warn("invalid job id in queue")
		return err
	}
	log := p.log.WithField("job_id", id.String())

	job, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			log.Warn("queued job does not exist")
			return nil
		}
		log.WithError(err).Error("load job")
		return fmt.Errorf("%w: load job: %w", ErrNotStarted, err)
	}
	if job.Status != entity.StatusQueued {
		log.WithField("status", job.Status).Info("job not queued, skipping")
		return nil
	}

	if err := p.repo.MarkRunning(ctx, id, ProgressStarted); err != nil {
		if errors.Is(err, postgresql.ErrInvalidTransition) {
			log.Info("job already started elsewhere, skipping")
			return nil
		}
		log.WithError(err).Error("mark running")
		return fmt.Errorf("%w: mark running: %w", ErrNotStarted, err)
	}
	log.WithField("status", entity.StatusRunning).Info("job started")

	if runErr := p.run(ctx, job); runErr != nil {
		msg := truncate(runErr.Error(), maxErrorLen)
		if err := p.repo.Fail(ctx, id, msg); err != nil {
			log.WithError(err).Error("mark failed")
		}
		log.WithFields(logrus.Fields{
			"status":      entity.StatusFailed,
			"code":        apperr.CodeOf(runErr),
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(runErr).Warn("job failed")
		return runErr
	}

	log.WithFields(logrus.Fields{
		"status":      entity.StatusCompleted,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("job completed")
	return nil
}

func (p *Processor) run(ctx context.Context, job *entity.Job) error {
	cred, err := p.creds.Resolve(ctx, job.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}
	if cred == "" {
		return errNoCredential
	}

	req := places.SearchRequest{
		Query:        job.Params.Query,
		Center:       geo.Point{Lat: job.Params.Lat, Lng: job.Params.Lng},
		RadiusMeters: job.Params.RadiusMeters,
		Limit:        job.Params.Limit,
	}
	raw, err := p.searcher.Search(ctx, req, cred)
	if err != nil {
		return apperr.Provider("place search failed", err)
	}
	if err := p.repo.UpdateProgress(ctx, job.ID, ProgressSearched); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	records := dedup.Dedupe(raw)
	if err := p.repo.UpdateProgress(ctx, job.ID, ProgressDeduped); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	snapshot := csvcodec.Encode(records)
	if err := p.repo.SaveSnapshot(ctx, job.ID, snapshot); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if err := p.repo.UpdateProgress(ctx, job.ID, ProgressStored); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}

	name := DeriveName(records, job.Params, p.now())
	if err := p.repo.Complete(ctx, job.ID, name); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"job_id":  job.ID.String(),
		"fetched": len(raw),
		"kept":    len(records),
	}).Debug("pipeline finished")

	if p.archiver != nil {
		if err := p.archiver.Archive(ctx, job.ID, snapshot); err != nil {
			p.log.WithField("job_id", job.ID.String()).WithError(err).Warn("snapshot archive failed")
		}
	}
	return nil
}

// DeriveName labels a job by its most frequent locality (ties go to the
// one seen first, "unknown" if none), the UTC time, radius and limit.
func DeriveName(records []entity.PlaceRecord, params entity.SearchParams, now time.Time) string {
	return fmt.Sprintf("%s %s r%dm n%d",
		dominantLocality(records),
		now.UTC().Format("2006-01-02 15:04"),
		params.RadiusMeters,
		params.Limit,
	)
}

func dominantLocality(records []entity.PlaceRecord) string {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		if r.Locality == "" {
			continue
		}
		if counts[r.Locality] == 0 {
			order = append(order, r.Locality)
		}
		counts[r.Locality]++
	}

	best, bestN := "unknown", 0
	for _, loc := range order {
		if counts[loc] > bestN {
			best, bestN = loc, counts[loc]
		}
	}
	return best
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
