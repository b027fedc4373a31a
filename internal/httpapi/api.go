package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/focusflow/splitd/internal/coordinator"
	"github.com/focusflow/splitd/internal/models"
)

// Handler exposes the caller-facing API: task intake, tree reads, expansion
// requests, job polling and reset. UI layers only ever call these and render
// the resulting state; no UI-side state machine.
type Handler struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
}

func NewHandler(coord *coordinator.Coordinator, logger *zap.Logger) *Handler {
	return &Handler{coord: coord, logger: logger}
}

// RegisterRoutes attaches all JSON endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tasks", h.createTask)
	mux.HandleFunc("GET /v1/tasks/{id}/tree", h.getTree)
	mux.HandleFunc("POST /v1/expansions", h.requestExpansion)
	mux.HandleFunc("GET /v1/jobs/{id}", h.jobStatus)
	mux.HandleFunc("POST /v1/nodes/{id}/reset", h.resetNode)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

type createTaskRequest struct {
	Description      string `json:"description"`
	EstimatedMinutes int    `json:"estimated_minutes,omitempty"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, models.WrapError(models.ErrCodeInvalidInput, err, "decode request body"))
		return
	}
	snap, err := h.coord.CreateTask(r.Context(), req.Description, req.EstimatedMinutes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.GetTree(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type expansionRequest struct {
	NodeID string `json:"node_id"`
	// TaskID is optional; supplying it lets the service load a tree that
	// is not yet live in memory before resolving the node.
	TaskID string `json:"task_id,omitempty"`
}

type expansionResponse struct {
	JobID  string `json:"job_id"`
	NodeID string `json:"node_id"`
}

func (h *Handler) requestExpansion(w http.ResponseWriter, r *http.Request) {
	var req expansionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, models.WrapError(models.ErrCodeInvalidInput, err, "decode request body"))
		return
	}
	if req.NodeID == "" {
		h.writeError(w, models.NewError(models.ErrCodeInvalidInput, "node_id is required"))
		return
	}
	if req.TaskID != "" {
		if _, err := h.coord.GetTree(r.Context(), req.TaskID); err != nil {
			h.writeError(w, err)
			return
		}
	}
	job, err := h.coord.RequestExpansion(req.NodeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, expansionResponse{JobID: job.ID, NodeID: job.NodeID})
}

type jobResponse struct {
	JobID  string              `json:"job_id"`
	NodeID string              `json:"node_id"`
	Status string              `json:"status"`
	Error  string              `json:"error,omitempty"`
	Code   string              `json:"code,omitempty"`
	Result *coordinator.Result `json:"result,omitempty"`
}

func (h *Handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.coord.Job(r.PathValue("id"))
	if !ok {
		h.writeError(w, models.NewError(models.ErrCodeNotFound, "job %s not found", r.PathValue("id")))
		return
	}
	resp := jobResponse{JobID: job.ID, NodeID: job.NodeID, Status: string(job.Status())}
	if result, err := job.Result(); err != nil {
		resp.Error = err.Error()
		resp.Code = string(models.CodeOf(err))
	} else if result != nil {
		resp.Result = result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resetNode(w http.ResponseWriter, r *http.Request) {
	snap, err := h.coord.ResetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps the taxonomy onto HTTP statuses. Caller errors are 4xx and
// never change state; job failures surface through the job endpoints.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch models.CodeOf(err) {
	case models.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case models.ErrCodeNotFound:
		status = http.StatusNotFound
	case models.ErrCodeAlreadyInProgress:
		status = http.StatusConflict
	case models.ErrCodeNotExpandable, models.ErrCodeInvalidTransition:
		status = http.StatusUnprocessableEntity
	case models.ErrCodeServiceUnavailable:
		status = http.StatusBadGateway
	case models.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		h.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: string(models.CodeOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
