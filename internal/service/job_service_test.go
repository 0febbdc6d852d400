package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"place-discovery-service/internal/apperr"
	"place-discovery-service/internal/csvcodec"
	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/mocks"
	"place-discovery-service/internal/repository/postgresql"
	"place-discovery-service/internal/service"
)

// fakeRegistry runs fn against ins and reports fn's error, like a
// transaction that rolls back on failure.
type fakeRegistry struct {
	ins       postgresql.RegistryInserter
	committed bool
}

func (r *fakeRegistry) WithTx(ctx context.Context, fn func(postgresql.RegistryInserter) error) error {
	if err := fn(r.ins); err != nil {
		return err
	}
	r.committed = true
	return nil
}

type deps struct {
	repo     *mocks.MockJobRepository
	queue    *mocks.MockJobQueue
	creds    *mocks.MockCredentialResolver
	inserter *mocks.MockRegistryInserter
	registry *fakeRegistry
	svc      *service.JobService
}

func newDeps(t *testing.T) *deps {
	t.Helper()
	ctrl := gomock.NewController(t)

	d := &deps{
		repo:     mocks.NewMockJobRepository(ctrl),
		queue:    mocks.NewMockJobQueue(ctrl),
		creds:    mocks.NewMockCredentialResolver(ctrl),
		inserter: mocks.NewMockRegistryInserter(ctrl),
	}
	d.registry = &fakeRegistry{ins: d.inserter}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d.svc = service.NewJobService(d.repo, d.queue, d.creds, d.registry, logger)
	return d
}

func ptr[T any](v T) *T { return &v }

func validRequest() service.CreateJobRequest {
	return service.CreateJobRequest{
		Query:        "bakery",
		Lat:          ptr(41.9),
		Lng:          ptr(12.5),
		RadiusMeters: 1000,
		Limit:        ptr(10),
		OwnerID:      "user-1",
	}
}

func TestCreateJob_PersistsAndEnqueues(t *testing.T) {
	d := newDeps(t)
	ctx := context.Background()
	id := uuid.MustParse("66666666-6666-6666-6666-666666666666")

	d.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return("key", nil)
	d.repo.EXPECT().Create(gomock.Any(), "user-1", entity.SearchParams{
		Query: "bakery", Lat: 41.9, Lng: 12.5, RadiusMeters: 1000, Limit: 10,
	}).Return(id, nil)
	d.queue.EXPECT().Enqueue(gomock.Any(), id.String()).Return(nil)

	got, err := d.svc.CreateJob(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestCreateJob_DefaultLimitAndTrim(t *testing.T) {
	d := newDeps(t)
	req := validRequest()
	req.Query = "  bakery  "
	req.Name = "  Rome run "
	req.Limit = nil

	d.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return("key", nil)
	d.repo.EXPECT().Create(gomock.Any(), "user-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, p entity.SearchParams) (uuid.UUID, error) {
			assert.Equal(t, "bakery", p.Query)
			assert.Equal(t, "Rome run", p.Name)
			assert.Equal(t, service.DefaultLimit, p.Limit)
			return uuid.New(), nil
		})
	d.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)

	_, err := d.svc.CreateJob(context.Background(), req)
	require.NoError(t, err)
}

func TestCreateJob_MissingCredential(t *testing.T) {
	d := newDeps(t)

	d.creds.EXPECT().Resolve(gomock.Any(), "user-1").Return("", nil)
	// no Create / Enqueue expected

	id, err := d.svc.CreateJob(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, apperr.CodeMissingCredential, apperr.CodeOf(err))
}

func TestCreateJob_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(r *service.CreateJobRequest)
		field string
	}{
		{"blank query", func(r *service.CreateJobRequest) { r.Query = "   " }, "query"},
		{"missing lat", func(r *service.CreateJobRequest) { r.Lat = nil }, "lat"},
		{"lat out of range", func(r *service.CreateJobRequest) { r.Lat = ptr(91.0) }, "lat"},
		{"lng out of range", func(r *service.CreateJobRequest) { r.Lng = ptr(-180.5) }, "lng"},
		{"radius too small", func(r *service.CreateJobRequest) { r.RadiusMeters = 49 }, "radius_meters"},
		{"radius too large", func(r *service.CreateJobRequest) { r.RadiusMeters = 50001 }, "radius_meters"},
		{"limit zero", func(r *service.CreateJobRequest) { r.Limit = ptr(0) }, "limit"},
		{"limit too large", func(r *service.CreateJobRequest) { r.Limit = ptr(201) }, "limit"},
		{"name too long", func(r *service.CreateJobRequest) { r.Name = strings.Repeat("x", 201) }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps(t)
			req := validRequest()
			tt.edit(&req)

			_, err := d.svc.CreateJob(context.Background(), req)
			require.Error(t, err)

			var ae *apperr.AppError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, apperr.CodeValidation, ae.Code)
			assert.Equal(t, tt.field, ae.Field)
		})
	}
}

func TestCreateJob_BoundaryValuesAccepted(t *testing.T) {
	d := newDeps(t)
	req := validRequest()
	req.Lat = ptr(0.0)
	req.Lng = ptr(-180.0)
	req.RadiusMeters = 50
	req.Limit = ptr(200)

	d.creds.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("key", nil)
	d.repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(uuid.New(), nil)
	d.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil)

	_, err := d.svc.CreateJob(context.Background(), req)
	require.NoError(t, err)
}

func TestCreateJob_EnqueueFailureFailsJob(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.creds.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return("key", nil)
	d.repo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(id, nil)
	d.queue.EXPECT().Enqueue(gomock.Any(), id.String()).Return(errors.New("redis down"))
	d.repo.EXPECT().Fail(gomock.Any(), id, gomock.Any()).Return(nil)

	_, err := d.svc.CreateJob(context.Background(), validRequest())
	assert.Equal(t, apperr.CodePersistence, apperr.CodeOf(err))
}

func TestGetJob_NotFound(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(nil, postgresql.ErrNotFound)

	_, err := d.svc.GetJob(context.Background(), id)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestListJobs_ClampsLimit(t *testing.T) {
	d := newDeps(t)

	d.repo.EXPECT().List(gomock.Any(), service.DefaultListLimit).Return(nil, nil)
	d.repo.EXPECT().List(gomock.Any(), service.MaxListLimit).Return([]entity.JobSummary{}, nil)

	_, err := d.svc.ListJobs(context.Background(), 0)
	require.NoError(t, err)
	_, err = d.svc.ListJobs(context.Background(), 1000)
	require.NoError(t, err)
}

func snapshotJob(id uuid.UUID, names ...string) *entity.Job {
	var b strings.Builder
	b.WriteString("name,locality,website,phone,categories\n")
	for i, n := range names {
		b.WriteString(n + ",Roma,http://site" + string(rune('a'+i)) + ".example,06 1,bakery|food\n")
	}
	s := b.String()
	return &entity.Job{ID: id, Status: entity.StatusCompleted, Snapshot: &s}
}

func TestImportJob_SkipsRowsWithoutName(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(snapshotJob(id, "A", "B", "", "C", "D"), nil)
	d.inserter.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c entity.RegistryCustomer) error {
			assert.NotEmpty(t, c.Name)
			assert.Equal(t, entity.DefaultRegistryStatus, c.Status)
			assert.Equal(t, "Roma", c.Locality)
			assert.Equal(t, "bakery", c.Category)
			assert.Equal(t, id, c.JobID)
			return nil
		}).Times(4)

	res, err := d.svc.ImportJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, service.ImportResult{Inserted: 4, Total: 5}, res)
	assert.True(t, d.registry.committed)
}

func TestImportJob_RollsBackOnFailure(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(snapshotJob(id, "A", "B", "C"), nil)
	gomock.InOrder(
		d.inserter.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil),
		d.inserter.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")),
	)

	res, err := d.svc.ImportJob(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, apperr.CodePersistence, apperr.CodeOf(err))
	assert.Equal(t, service.ImportResult{}, res)
	assert.False(t, d.registry.committed)
}

func TestImportJob_NoSnapshot(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(&entity.Job{ID: id, Status: entity.StatusRunning}, nil)

	res, err := d.svc.ImportJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, service.ImportResult{}, res)
}

func TestGetJobRowCount(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(snapshotJob(id, "A", "B", "C"), nil)

	n, err := d.svc.GetJobRowCount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPreviewJobRecords_Pages(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()
	job := snapshotJob(id, "A", "B", "C", "D")

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(job, nil).Times(2)

	page, err := d.svc.PreviewJobRecords(context.Background(), id, 2, 1)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "B", page.Records[0][csvcodec.ColName])
	assert.Equal(t, "C", page.Records[1][csvcodec.ColName])
	assert.Equal(t, 4, page.Total)

	page, err = d.svc.PreviewJobRecords(context.Background(), id, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Records)

	_, err = d.svc.PreviewJobRecords(context.Background(), id, 10, -1)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestPreviewJobRecords_ReportsEffectiveLimit(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()
	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(snapshotJob(id, "A"), nil).Times(2)

	page, err := d.svc.PreviewJobRecords(context.Background(), id, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultPreviewLimit, page.Limit)

	page, err = d.svc.PreviewJobRecords(context.Background(), id, 10_000, 0)
	require.NoError(t, err)
	assert.Equal(t, service.MaxPreviewLimit, page.Limit)
}

func TestExportJob_Formats(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()
	job := snapshotJob(id, "A", "B")

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(job, nil).AnyTimes()

	csvOut, err := d.svc.ExportJob(context.Background(), id, service.FormatCSV, nil)
	require.NoError(t, err)
	assert.Equal(t, *job.Snapshot, string(csvOut.Body))

	jsonOut, err := d.svc.ExportJob(context.Background(), id, service.FormatJSON, nil)
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(jsonOut.Body, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0]["name"])

	nd, err := d.svc.ExportJob(context.Background(), id, service.FormatNDJSON, nil)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(nd.Body), "\n"), "\n")
	assert.Len(t, lines, 2)

	xl, err := d.svc.ExportJob(context.Background(), id, service.FormatXLSX, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(xl.Body), "PK"))
	assert.Equal(t, "job-"+id.String()+".xlsx", xl.Filename)

	_, err = d.svc.ExportJob(context.Background(), id, "pdf", nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestExportJob_ColumnSubset(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()
	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(snapshotJob(id, "A", "B"), nil).AnyTimes()

	out, err := d.svc.ExportJob(context.Background(), id, service.FormatCSV, []string{"phone", "name", "phone"})
	require.NoError(t, err)
	assert.Equal(t, "phone,name\n06 1,A\n06 1,B\n", string(out.Body))

	out, err = d.svc.ExportJob(context.Background(), id, service.FormatJSON, []string{"name"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"A"},{"name":"B"}]`, string(out.Body))

	_, err = d.svc.ExportJob(context.Background(), id, service.FormatCSV, []string{"name", "rating"})
	var ae *apperr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeValidation, ae.Code)
	assert.Equal(t, "columns", ae.Field)
}

func TestExportJob_NoSnapshot(t *testing.T) {
	d := newDeps(t)
	id := uuid.New()

	d.repo.EXPECT().GetByID(gomock.Any(), id).Return(&entity.Job{ID: id, Status: entity.StatusQueued}, nil)

	_, err := d.svc.ExportJob(context.Background(), id, service.FormatCSV, nil)
	assert.Equal(t, apperr.CodeConflict, apperr.CodeOf(err))
}

type mapStore map[string]string

func (m mapStore) Lookup(_ context.Context, owner string) (string, error) { return m[owner], nil }

func TestCredentialResolver(t *testing.T) {
	ctx := context.Background()
	r := service.NewCredentialResolver(mapStore{"u1": "k1"}, "default")

	got, err := r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "k1", got)

	got, _ = r.Resolve(ctx, "u2")
	assert.Equal(t, "default", got)

	got, _ = service.NewCredentialResolver(nil, "").Resolve(ctx, "u1")
	assert.Equal(t, "", got)
}
