package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/audit"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/auth"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/application"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/domain"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/infrastructure/sqlstore"
)

// Runner starts and looks up reconciliation runs.
type Runner interface {
	Submit(ctx context.Context, req application.RunRequest) (*sqlstore.Run, error)
	Get(ctx context.Context, id string) (*sqlstore.Run, error)
	List(ctx context.Context, limit int) ([]sqlstore.Run, error)
}

// Handler provides run HTTP endpoints.
type Handler struct {
	runner      Runner
	auditLogger audit.Logger
	logger      logrus.FieldLogger
}

// NewHandler constructs a handler. auditLogger may be nil.
func NewHandler(runner Runner, auditLogger audit.Logger, logger logrus.FieldLogger) (*Handler, error) {
	if runner == nil {
		return nil, errors.New("runs handler: nil runner")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{runner: runner, auditLogger: auditLogger, logger: logger}, nil
}

// RunRequest is the body of POST /api/v1/runs. Dates are YYYY-MM-DD.
type RunRequest struct {
	Table  string `json:"table"`
	Report string `json:"report,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

// RunDTO is the wire form of a stored run.
type RunDTO struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Report     string          `json:"report"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  string          `json:"created_at"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SubmitRun handles POST /api/v1/runs.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", err)
		return
	}
	if !tableAllowed(r, body.Table) {
		writeError(w, http.StatusForbidden, "table not granted to caller", nil)
		return
	}
	req := application.RunRequest{Table: body.Table, Report: body.Report}
	var err error
	if req.Start, err = optionalDate(body.Start); err != nil {
		writeError(w, http.StatusBadRequest, "start must be a date", err)
		return
	}
	if req.End, err = optionalDate(body.End); err != nil {
		writeError(w, http.StatusBadRequest, "end must be a date", err)
		return
	}

	run, err := h.runner.Submit(r.Context(), req)
	switch {
	case errors.Is(err, application.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run already in progress", err)
		return
	case errors.Is(err, domain.ErrUnsupportedTarget), errors.Is(err, application.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid run request", err)
		return
	case err != nil:
		h.logger.WithError(err).WithField("event", "mis_http_submit_failed").Error("run submit failed")
		writeError(w, http.StatusInternalServerError, "submit failed", err)
		return
	}

	h.logAudit(r, run)
	writeJSON(w, http.StatusAccepted, toRunDTO(*run))
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, sqlstore.ErrRunNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to get run", err)
		return
	}
	// Runs on tables outside the caller's grant are reported as absent.
	if err != nil || !tableAllowed(r, run.Table) {
		writeError(w, http.StatusNotFound, "run not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// ListRuns handles GET /api/v1/runs?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	runs, err := h.runner.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		if !tableAllowed(r, run.Table) {
			continue
		}
		dto := toRunDTO(run)
		dto.Summary = nil
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) logAudit(r *http.Request, run *sqlstore.Run) {
	if h.auditLogger == nil || run == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"table":      run.Table,
		"report":     run.Report,
		"start_date": run.StartDate.Format(time.DateOnly),
		"end_date":   run.EndDate.Format(time.DateOnly),
	})
	id, _ := auth.IdentityFromContext(r.Context())
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        id.Subject,
		Scope:        auth.JoinScopes(id.Scopes),
		Action:       "run.submit",
		ResourceType: "run",
		ResourceID:   run.ID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.WithError(err).WithField("run_id", run.ID).Warn("audit log failed")
	}
}

// tableAllowed applies the token's table claim. Unauthenticated deployments
// carry no identity and see every table.
func tableAllowed(r *http.Request, table string) bool {
	id, ok := auth.IdentityFromContext(r.Context())
	return !ok || id.CanAccessTable(table)
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toRunDTO(run sqlstore.Run) RunDTO {
	dto := RunDTO{
		ID:        run.ID,
		Table:     run.Table,
		Report:    run.Report,
		StartDate: run.StartDate.Format(time.DateOnly),
		EndDate:   run.EndDate.Format(time.DateOnly),
		Status:    run.Status,
		Error:     run.Error,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		dto.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.FinishedAt != nil {
		dto.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	if len(run.Summary) > 0 && json.Valid(run.Summary) {
		dto.Summary = json.RawMessage(run.Summary)
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
