package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

const (
	scanPageSize      = 20
	scanMaxPageSize   = 100
	resultPageSize    = 50
	resultMaxPageSize = 200
	storeTimeout      = 10 * time.Second
	quickScanPorts    = profiles.KeywordCommon
	quickScanTimeout  = 2 * time.Second
	quickScanWorkers  = 100
	exportFilePattern = "portsweep-%s.csv"
)

// ScanRequest is the body of POST /scans.
type ScanRequest struct {
	Target      string   `json:"target" validate:"required,max=1024"`
	Ports       string   `json:"ports,omitempty" validate:"omitempty,max=4096"`
	Protocols   []string `json:"protocols,omitempty" validate:"omitempty,dive,oneof=TCP UDP tcp udp"`
	Timeout     int      `json:"timeout,omitempty" validate:"omitempty,min=1,max=60"`
	Concurrency int      `json:"concurrency,omitempty" validate:"omitempty,min=1,max=500"`
	Profile     string   `json:"profile,omitempty" validate:"omitempty,max=64"`
}

// QuickScanRequest is the body of POST /quick-scan.
type QuickScanRequest struct {
	Target string `json:"target" validate:"required,max=1024"`
}

// ScanStatusResponse reports the live state of a scan.
type ScanStatusResponse struct {
	ID              string       `json:"id"`
	Status          db.JobStatus `json:"status"`
	Running         bool         `json:"running"`
	Progress        int          `json:"progress"`
	CompletedProbes int          `json:"completed_probes"`
	TotalProbes     int          `json:"total_probes"`
	DurationSeconds float64      `json:"duration_seconds"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// ScanDefaults are applied to fields a request leaves empty.
type ScanDefaults struct {
	Ports     string
	Protocols []scanning.Protocol
	Config    scanning.Config
}

// ScanHandler serves the /scans endpoints.
type ScanHandler struct {
	store    ScanStore
	jobs     JobController
	profiles *profiles.Manager
	defaults ScanDefaults
	logger   *logging.Logger
}

// NewScanHandler creates a scan handler.
func NewScanHandler(
	store ScanStore,
	controller JobController,
	profileManager *profiles.Manager,
	defaults ScanDefaults,
	logger *logging.Logger,
) *ScanHandler {
	return &ScanHandler{
		store:    store,
		jobs:     controller,
		profiles: profileManager,
		defaults: defaults,
		logger:   logger.WithComponent("api.scans"),
	}
}

// CreateScan handles POST /scans.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var body ScanRequest
	if err := parseJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.buildRequest(&body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.submit(w, r, req)
}

// QuickScan handles POST /quick-scan: common TCP ports with short timeouts.
func (h *ScanHandler) QuickScan(w http.ResponseWriter, r *http.Request) {
	var body QuickScanRequest
	if err := parseJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	h.submit(w, r, jobs.Request{
		Target:    strings.TrimSpace(body.Target),
		Ports:     quickScanPorts,
		Protocols: []scanning.Protocol{scanning.TCP},
		Config:    scanning.Config{Timeout: quickScanTimeout, Concurrency: quickScanWorkers},
	})
}

func (h *ScanHandler) submit(w http.ResponseWriter, r *http.Request, req jobs.Request) {
	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Info("Scan submitted",
		"request_id", middleware.GetRequestID(r),
		"job_id", job.ID.String(),
		"target", job.Target,
		"probes", job.TotalProbes)
	w.Header().Set("Location", "/api/v1/scans/"+job.ID.String())
	writeJSON(w, r, http.StatusCreated, job)
}

// buildRequest resolves a request body against its profile and the defaults.
func (h *ScanHandler) buildRequest(body *ScanRequest) (jobs.Request, error) {
	req := jobs.Request{
		Target:    strings.TrimSpace(body.Target),
		Ports:     h.defaults.Ports,
		Protocols: h.defaults.Protocols,
		Config:    h.defaults.Config,
	}

	if body.Profile != "" {
		if h.profiles == nil {
			return jobs.Request{}, errors.NewScanError(errors.CodeConfiguration, "profiles are not available")
		}
		profile, err := h.profiles.Get(body.Profile)
		if err != nil {
			return jobs.Request{}, err
		}
		protocols, err := profile.ProtocolList()
		if err != nil {
			return jobs.Request{}, err
		}
		req.Ports = profile.Ports
		req.Config = profile.ScanConfig()
		req.Protocols = protocols
	}

	if body.Ports != "" {
		req.Ports = body.Ports
	}
	if len(body.Protocols) > 0 {
		protocols, err := scanning.ParseProtocols(body.Protocols)
		if err != nil {
			return jobs.Request{}, err
		}
		req.Protocols = protocols
	}
	if body.Timeout > 0 {
		req.Config.Timeout = time.Duration(body.Timeout) * time.Second
	}
	if body.Concurrency > 0 {
		req.Config.Concurrency = body.Concurrency
	}
	return req, nil
}

// ListScans handles GET /scans.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	params, err := getPaginationParams(r, scanPageSize, scanMaxPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := db.JobFilter{Limit: params.PageSize, Offset: params.Offset}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = db.JobStatus(strings.ToLower(status))
		if !filter.Status.Valid() {
			writeError(w, r, errors.NewScanError(errors.CodeValidation, fmt.Sprintf("unknown status %q", status)))
			return
		}
	}

	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	jobList, total, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePaginatedResponse(w, r, jobList, params, total)
}

// GetScan handles GET /scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}

// DeleteScan handles DELETE /scans/{id}. Running scans must be stopped first.
func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.jobs.IsRunning(id) {
		writeError(w, r, errors.NewScanError(errors.CodeJobRunning,
			fmt.Sprintf("scan %s is running; stop it before deleting", id)))
		return
	}

	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	if err := h.store.DeleteJob(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	h.logger.Info("Scan deleted", "request_id", middleware.GetRequestID(r), "job_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// StopScan handles POST /scans/{id}/stop.
func (h *ScanHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.jobs.Stop(id); err != nil {
		if !errors.IsNotFound(err) {
			writeError(w, r, err)
			return
		}
		// Not running: distinguish a finished scan from an unknown one.
		ctx, cancel := requestContext(r, storeTimeout)
		defer cancel()
		job, getErr := h.store.GetJob(ctx, id)
		if getErr != nil {
			writeError(w, r, getErr)
			return
		}
		writeError(w, r, errors.NewScanError(errors.CodeConflict,
			fmt.Sprintf("scan %s is not running (status %s)", id, job.Status)))
		return
	}

	h.logger.Info("Scan stop requested", "request_id", middleware.GetRequestID(r), "job_id", id.String())
	writeJSON(w, r, http.StatusAccepted, map[string]string{
		"id":     id.String(),
		"status": "stopping",
	})
}

// ScanStatus handles GET /scans/{id}/status.
func (h *ScanHandler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	resp := ScanStatusResponse{
		ID:              job.ID.String(),
		Status:          job.Status,
		Running:         h.jobs.IsRunning(job.ID),
		Progress:        job.Progress,
		CompletedProbes: job.CompletedProbes,
		TotalProbes:     job.TotalProbes,
		DurationSeconds: job.Duration().Seconds(),
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
	if job.ErrorMessage != nil {
		resp.ErrorMessage = *job.ErrorMessage
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// ScanResults handles GET /scans/{id}/results.
func (h *ScanHandler) ScanResults(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	params, err := getPaginationParams(r, resultPageSize, resultMaxPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	query := r.URL.Query()
	filter := db.ResultFilter{
		Status:   query.Get("status"),
		Host:     query.Get("host"),
		Protocol: query.Get("protocol"),
		Limit:    params.PageSize,
		Offset:   params.Offset,
	}

	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	results, total, err := h.store.ListResults(ctx, job.ID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePaginatedResponse(w, r, results, params, total)
}

// ExportScan handles GET /scans/{id}/export, streaming results as CSV.
func (h *ScanHandler) ExportScan(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	results, err := h.store.AllResults(ctx, job.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	scanning.SortResults(results)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf(exportFilePattern, job.ID)))
	w.WriteHeader(http.StatusOK)
	if err := scanning.WriteCSV(w, results); err != nil {
		h.logger.Error("Failed to write CSV export",
			"request_id", middleware.GetRequestID(r),
			"job_id", job.ID.String(),
			"error", err)
	}
}

// ScanHistory handles GET /scans/{id}/history.
func (h *ScanHandler) ScanHistory(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	history, err := h.store.GetHistory(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, history)
}

// StatisticsResponse combines stored job statistics with live slot usage.
type StatisticsResponse struct {
	*db.Statistics
	Slots jobs.SlotStats `json:"slots"`
}

// Statistics handles GET /statistics.
func (h *ScanHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	stats, err := h.store.Statistics(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, StatisticsResponse{Statistics: stats, Slots: h.jobs.Stats()})
}

func (h *ScanHandler) loadJob(w http.ResponseWriter, r *http.Request) (*db.ScanJob, bool) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	ctx, cancel := requestContext(r, storeTimeout)
	defer cancel()

	job, err := h.store.GetJob(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return job, true
}
