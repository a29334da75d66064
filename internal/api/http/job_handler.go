package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/pablopunk/bucky-sub000/internal/domain"
	"github.com/pablopunk/bucky-sub000/internal/engine"
	"github.com/pablopunk/bucky-sub000/internal/metrics"
	"github.com/pablopunk/bucky-sub000/internal/usecase"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobHandler serves the job admin endpoints.
type JobHandler struct {
	service *usecase.JobService
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(service *usecase.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger.With("component", "job-handler"),
		tracer:  otel.Tracer("backupd-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers job-related routes to the http.ServeMux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	baseHandler := http.HandlerFunc(h.handleJobs)

	instrumentedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := "/jobs/"
		if jobID := strings.TrimPrefix(r.URL.Path, "/jobs/"); jobID != "" {
			path = "/jobs/{id}"
		}

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		baseHandler.ServeHTTP(iw, r)

		metrics.HTTPRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})

	mux.Handle("/jobs/", instrumentedHandler)
	mux.Handle("/jobs", instrumentedHandler)
}

// handleJobs is a general dispatcher for the /jobs/ path.
// e.g. /jobs/{id}/history -> ["jobs", "{id}", "history"]
func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(pathParts) < 1 || pathParts[0] != "jobs" {
		http.NotFound(w, r)
		return
	}

	var jobID, action string
	if len(pathParts) > 1 {
		jobID = pathParts[1]
	}
	if len(pathParts) > 2 {
		action = pathParts[2]
	}

	switch r.Method {
	case http.MethodGet:
		switch {
		case jobID != "" && action == "history":
			h.handleGetJobHistory(w, r, jobID)
		case jobID != "" && action == "":
			h.handleGetJob(w, r, jobID)
		case jobID == "" && action == "":
			h.handleListJobs(w, r)
		default:
			http.NotFound(w, r)
		}
	case http.MethodPost, http.MethodPut:
		switch action {
		case "":
			h.handleSaveJob(w, r)
		case "run", "pause", "resume", "stop":
			h.handleJobAction(w, r, jobID, action)
		default:
			http.NotFound(w, r)
		}
	case http.MethodDelete:
		if jobID != "" && action == "" {
			h.handleDeleteJob(w, r, jobID)
		} else {
			http.Error(w, "Job id is required for deletion", http.StatusBadRequest)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) handleSaveJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SaveJob")
	defer span.End()

	var req SaveJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := req.ToDomainJob()
	span.SetAttributes(attribute.String("job.name", job.Name))

	if err := h.service.Save(ctx, job); err != nil {
		span.SetStatus(codes.Error, "Failed to save job in service")
		span.RecordError(err)
		h.logger.Error("error saving job", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) handleJobAction(w http.ResponseWriter, r *http.Request, jobID, action string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.JobAction")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID), attribute.String("job.action", action))

	var err error
	switch action {
	case "run":
		err = h.service.RunNow(ctx, jobID)
	case "pause":
		err = h.service.Pause(ctx, jobID)
	case "resume":
		err = h.service.Resume(ctx, jobID)
	case "stop":
		err = h.service.Stop(ctx, jobID)
	}

	if err != nil {
		span.RecordError(err)
		h.logger.Warn("job action failed", "job_id", jobID, "action", action, "error", err)
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, engine.ErrJobNotRunning), errors.Is(err, engine.ErrJobInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *JobHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.DeleteJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	if err := h.service.Delete(ctx, jobID); err != nil {
		span.RecordError(err)
		h.logger.Error("error deleting job", "job_id", jobID, "error", err)
		if errors.Is(err, domain.ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) handleGetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	job, err := h.service.Get(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("error getting job", "job_id", jobID, "error", err)
		if errors.Is(err, domain.ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListJobs")
	defer span.End()

	jobs, err := h.service.List(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("error listing jobs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// handleGetJobHistory lists execution history (GET /jobs/{id}/history).
func (h *JobHandler) handleGetJobHistory(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJobHistory")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", jobID))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	history, err := h.service.ListHistory(ctx, jobID, page, pageSize)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("error listing job history", "job_id", jobID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}
