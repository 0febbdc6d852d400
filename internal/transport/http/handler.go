package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/apperr"
	"place-discovery-service/internal/csvcodec"
	"place-discovery-service/internal/entity"
	"place-discovery-service/internal/service"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	jobSvc *service.JobService
	log    logrus.FieldLogger
}

func NewHandler(jobSvc *service.JobService, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{jobSvc: jobSvc, log: log}
}

type createJobDTO struct {
	Query        string   `json:"query"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	RadiusMeters int      `json:"radius_meters"`
	Limit        *int     `json:"limit,omitempty"`
	Name         string   `json:"name,omitempty"`
}

type createJobResp struct {
	ID string `json:"id"`
}

type jobResp struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    entity.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Error     *string          `json:"error,omitempty"`
	Params    jobParamsResp    `json:"params"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

type jobParamsResp struct {
	Query        string  `json:"query"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters int     `json:"radius_meters"`
	Limit        int     `json:"limit"`
}

type jobSummaryResp struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    entity.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	Error     *string          `json:"error,omitempty"`
	CreatedAt string           `json:"created_at"`
}

type countResp struct {
	Total int `json:"total"`
}

type recordsResp struct {
	Records []csvcodec.Row `json:"records"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Total   int            `json:"total"`
}

// CreateJob godoc
// @Summary Create a place search job
// @Description Validates the search, resolves the caller's provider credential, stores a queued job and schedules it.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "search request (limit defaults to 60)"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 412 {object} apiError "no provider credential"
// @Failure 503 {object} apiError
// @Security BearerAuth
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	var dto createJobDTO
	if err := dec.Decode(&dto); err != nil {
		writeErr(w, apperr.Validation("invalid json: "+jsonProblem(err)))
		return
	}

	id, err := h.jobSvc.CreateJob(r.Context(), service.CreateJobRequest{
		Query:        dto.Query,
		Lat:          dto.Lat,
		Lng:          dto.Lng,
		RadiusMeters: dto.RadiusMeters,
		Limit:        dto.Limit,
		Name:         dto.Name,
		OwnerID:      CallerID(r.Context()),
	})
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, createJobResp{ID: id.String()})
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResp{
		ID:       j.ID.String(),
		Name:     j.Name,
		Status:   j.Status,
		Progress: j.Progress,
		Error:    j.Error,
		Params: jobParamsResp{
			Query:        j.Params.Query,
			Lat:          j.Params.Lat,
			Lng:          j.Params.Lng,
			RadiusMeters: j.Params.RadiusMeters,
			Limit:        j.Params.Limit,
		},
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	})
}

// ListJobs godoc
// @Summary List recent jobs
// @Tags jobs
// @Produce json
// @Param limit query int false "page size (default 20, max 100)"
// @Success 200 {array} jobSummaryResp
// @Failure 400 {object} apiError
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	jobs, err := h.jobSvc.ListJobs(r.Context(), limit)
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}

	out := make([]jobSummaryResp, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobSummaryResp{
			ID:        j.ID.String(),
			Name:      j.Name,
			Status:    j.Status,
			Progress:  j.Progress,
			Error:     j.Error,
			CreatedAt: j.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetJobRowCount godoc
// @Summary Count snapshot rows
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} countResp
// @Failure 404 {object} apiError
// @Router /jobs/{id}/count [get]
func (h *Handler) GetJobRowCount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	n, err := h.jobSvc.GetJobRowCount(r.Context(), id)
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, countResp{Total: n})
}

// PreviewJobRecords godoc
// @Summary Preview snapshot rows
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Param limit query int false "page size (default 50, max 500)"
// @Param offset query int false "rows to skip"
// @Success 200 {object} recordsResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id}/records [get]
func (h *Handler) PreviewJobRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	page, err := h.jobSvc.PreviewJobRecords(r.Context(), id, limit, offset)
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, recordsResp{
		Records: page.Records,
		Limit:   page.Limit,
		Offset:  page.Offset,
		Total:   page.Total,
	})
}

// ExportJob godoc
// @Summary Export the job snapshot
// @Tags jobs
// @Produce text/csv
// @Produce application/json
// @Produce application/x-ndjson
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "job id (uuid)"
// @Param format query string false "csv (default), json, ndjson or xlsx"
// @Param columns query string false "comma-separated column subset, in output order"
// @Success 200 {file} file
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError "no snapshot yet"
// @Router /jobs/{id}/export [get]
func (h *Handler) ExportJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var columns []string
	if raw := q.Get("columns"); raw != "" {
		columns = strings.Split(raw, ",")
	}

	out, err := h.jobSvc.ExportJob(r.Context(), id, service.ExportFormat(q.Get("format")), columns)
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}

// ImportJob godoc
// @Summary Import snapshot rows into the registry
// @Description Every row with a name becomes a registry customer with status "lead". All or nothing.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} service.ImportResult
// @Failure 404 {object} apiError
// @Failure 503 {object} apiError
// @Router /jobs/{id}/import [post]
func (h *Handler) ImportJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	res, err := h.jobSvc.ImportJob(r.Context(), id)
	if err != nil {
		writeAppErr(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, apperr.ValidationField("id", "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeErr(w, apperr.ValidationField(name, name+" must be an integer"))
		return 0, false
	}
	return v, true
}

func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field + " has the wrong type"
	}
	if errors.Is(err, io.EOF) {
		return "empty body"
	}
	return err.Error()
}
