/*
handlers.go - HTTP API handlers for the flow engine

PURPOSE:
  Exposes stored calculation runs via REST API, and computes new runs from
  the inputs the server was started with. Handles HTTP request/response,
  JSON serialization, and delegates to calc, report and the run store.

ENDPOINTS:
  GET    /api/health                    Liveness and whether inputs are loaded
  GET    /api/runs                      List runs, newest first
  POST   /api/runs                      Compute and store a run
  GET    /api/runs/{id}                 Run header
  GET    /api/runs/{id}/flows           Long-form flows (?level=&region=&units=)
  GET    /api/runs/{id}/diagnostics     Non-fatal conditions of the run
  GET    /api/scenarios                 Built-in demo inputs
  GET    /api/scenarios/current         Scenario behind the current inputs
  POST   /api/scenarios/load            Swap in a scenario and compute a run

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Run persistence (generic.Store)
  - Inputs: Calculator and baseline, swappable at runtime (see scheduler.go)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid level, unknown region or scenario, malformed body
  - 404: Unknown run
  - 409: Duplicate run ID
  - 503: No inputs loaded
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo inputs
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/flow-engine/calc"
	"github.com/warp/flow-engine/generic"
	"github.com/warp/flow-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Inputs is everything needed to compute a run.
type Inputs struct {
	Calculator *calc.Calculator
	Baseline   *calc.Baseline
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store generic.Store

	mu       sync.RWMutex
	inputs   *Inputs
	scenario string // built-in scenario behind inputs, empty for files

	seq    atomic.Uint64
	now    func() time.Time
	logger *slog.Logger
}

// NewHandler creates a handler over store. inputs may be nil: stored runs
// can still be browsed, but POST /api/runs answers 503.
func NewHandler(store generic.Store, inputs *Inputs) *Handler {
	return &Handler{
		Store:  store,
		inputs: inputs,
		now:    time.Now,
		logger: slog.Default().With(slog.String("component", "api")),
	}
}

// SetInputs replaces the inputs used by later computations.
func (h *Handler) SetInputs(in *Inputs) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inputs = in
	h.scenario = ""
}

func (h *Handler) currentInputs() *Inputs {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.inputs
}

// ErrNoInputs is returned by Compute when the server has nothing to compute.
var ErrNoInputs = errors.New("no calculation inputs loaded")

// Compute runs the calculation for region (empty for all) and stores the
// result as a new run.
func (h *Handler) Compute(ctx context.Context, region string) (generic.Run, error) {
	in := h.currentInputs()
	if in == nil || in.Calculator == nil || in.Baseline == nil {
		return generic.Run{}, ErrNoInputs
	}

	result, err := in.Calculator.Run(ctx, in.Baseline, calc.RunOptions{Region: region})
	if err != nil {
		return generic.Run{}, err
	}

	created := h.now().UTC()
	id := generic.RunID(fmt.Sprintf("run-%s-%d", created.Format("20060102T150405"), h.seq.Add(1)))
	run, flows, diags, err := report.Record(result, id, region, created)
	if err != nil {
		return generic.Run{}, err
	}
	if err := h.Store.SaveRun(ctx, run, flows, diags); err != nil {
		return generic.Run{}, err
	}
	for _, d := range result.Diagnostics {
		h.logger.Warn("diagnostic",
			slog.String("run", string(id)),
			slog.String("kind", string(d.Kind())),
			slog.String("message", d.String()))
	}
	h.logger.Info("run stored",
		slog.String("run", string(id)),
		slog.Int("regions", run.Regions),
		slog.Int("flows", run.Flows))
	return run, nil
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Inputs: h.currentInputs() != nil})
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// ListRuns returns all stored runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRun computes a run with the loaded inputs and stores it.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	run, err := h.Compute(r.Context(), req.Region)
	if err != nil {
		writeError(w, statusFor(err), "Failed to compute run", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run))
}

// GetRun returns one run header.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := generic.RunID(chi.URLParam(r, "id"))
	run, err := h.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get run", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// GetFlows returns the run's flows at the requested level (default 5),
// optionally narrowed to one region and one unit.
func (h *Handler) GetFlows(w http.ResponseWriter, r *http.Request) {
	id := generic.RunID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	level := generic.Levels
	if s := q.Get("level"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid level", err)
			return
		}
		level = n
	}
	if err := generic.ValidateLevel(level); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid level", err)
		return
	}

	filter := generic.FlowFilter{Region: generic.Region(q.Get("region"))}
	if s := q.Get("units"); s != "" {
		u, ok := generic.ParseUnits(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid units", fmt.Errorf("unknown units %q", s))
			return
		}
		filter.Units = u
	}

	rows, err := h.Store.LoadFlows(r.Context(), id, filter)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load flows", err)
		return
	}
	grouped, err := report.Group(rows, level)
	if err != nil {
		writeError(w, statusFor(err), "Failed to group flows", err)
		return
	}

	resp := FlowsResponse{RunID: string(id), Level: level, Count: len(grouped), Flows: make([]FlowDTO, len(grouped))}
	for i, row := range grouped {
		resp.Flows[i] = toFlowDTO(row)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDiagnostics returns the run's diagnostics in recorded order.
func (h *Handler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	id := generic.RunID(chi.URLParam(r, "id"))
	diags, err := h.Store.LoadDiagnostics(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load diagnostics", err)
		return
	}

	dtos := make([]DiagnosticDTO, len(diags))
	for i, d := range diags {
		dtos[i] = DiagnosticDTO{Pass: d.Pass, Region: string(d.Region), Kind: string(d.Kind), Message: d.Message}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrUnknownRegion), errors.Is(err, generic.ErrInvalidLevel):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrDuplicateRun):
		return http.StatusConflict
	case errors.Is(err, ErrNoInputs):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
