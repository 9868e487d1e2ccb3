package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	appbudget "daybrief/internal/application/budget"
	appfaults "daybrief/internal/application/faults"
	"daybrief/internal/application/pipeline"
	"daybrief/internal/domain/digest"
	"daybrief/internal/domain/faults"
	"daybrief/internal/middleware"
)

var errRunInProgress = errors.New("a digest run is already in progress")

type Router struct {
	orch     *pipeline.Orchestrator
	ledger   *appbudget.Ledger
	registry *appfaults.Registry
	repo     digest.Repository

	mu      sync.Mutex
	running bool
	lastRun *digest.Envelope
}

func NewRouter(orch *pipeline.Orchestrator, ledger *appbudget.Ledger, registry *appfaults.Registry, repo digest.Repository, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{orch: orch, ledger: ledger, registry: registry, repo: repo}
	mux := chi.NewRouter()

	mux.Get("/health", r.wrap(r.handleHealth))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/health/process", middleware.HealthHandler(checkers))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/digest/run", r.wrap(r.handleRun))
		rt.Get("/digest/last", r.wrap(r.handleLast))
		rt.Get("/digest/latest", r.wrap(r.handleLatest))
		rt.Get("/budget", r.wrap(r.handleBudget))
		rt.Get("/budget/usage", r.wrap(r.handleUsage))
		rt.Get("/errors", r.wrap(r.handleErrors))
		rt.Post("/errors/resolve", r.wrap(r.handleResolve))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			if errors.Is(err, errRunInProgress) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /v1/digest/run?window_hours=24&wait=true
// Without wait the run is queued in the background and the caller gets
// the run parameters back immediately.
func (r *Router) handleRun(w http.ResponseWriter, req *http.Request) error {
	hours, _ := strconv.Atoi(req.URL.Query().Get("window_hours"))
	hours, err := middleware.ValidateWindowHours(hours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	window := time.Duration(hours) * time.Hour
	wait := req.URL.Query().Get("wait") == "true"

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	if wait {
		env, err := r.runOnce(req.Context(), window)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(env)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := r.runOnce(ctx, window); err != nil {
			fmt.Printf("background digest run error: %v\n", err)
		}
	}()

	resp := map[string]any{
		"status":       "queued",
		"window_hours": hours,
		"queuedAt":     time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(resp)
}

func (r *Router) runOnce(ctx context.Context, window time.Duration) (*digest.Envelope, error) {
	middleware.IncrementRuns()
	middleware.IncrementRunsRunning()
	defer func() {
		middleware.DecrementRunsRunning()
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	env, err := r.orch.Run(ctx, window)
	if err != nil {
		return nil, err
	}
	switch env.Status {
	case digest.StatusDegraded:
		middleware.IncrementRunsDegraded()
	case digest.StatusFallback:
		middleware.IncrementRunsFallback()
	}

	r.mu.Lock()
	r.lastRun = env
	r.mu.Unlock()
	return env, nil
}

// GET /v1/digest/last returns the most recent run kept in memory
func (r *Router) handleLast(w http.ResponseWriter, req *http.Request) error {
	r.mu.Lock()
	env := r.lastRun
	r.mu.Unlock()

	if env == nil {
		http.Error(w, "no digest run yet", http.StatusNotFound)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(env)
}

// GET /v1/digest/latest?limit=10 reads persisted runs from the repository
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	if r.repo == nil {
		http.Error(w, "run repository not configured", http.StatusNotImplemented)
		return nil
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	limit = middleware.ValidateLimit(limit)

	list, err := r.repo.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/budget
func (r *Router) handleBudget(w http.ResponseWriter, req *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.ledger.Snapshot())
}

// GET /v1/budget/usage?days=7
func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))
	days = middleware.ValidateDays(days)

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.ledger.UsageSummary(days))
}

// GET /v1/errors?hours=24
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	hours, _ := strconv.Atoi(req.URL.Query().Get("hours"))
	hours = middleware.ValidateHours(hours)

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.registry.Summary(hours))
}

// POST /v1/errors/resolve
// Body: {"component": "...", "kind": "..."}
func (r *Router) handleResolve(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Component string `json:"component"`
		Kind      string `json:"kind"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return err
	}
	component := middleware.SanitizeString(body.Component)
	kind := middleware.SanitizeString(body.Kind)
	if component == "" || kind == "" {
		http.Error(w, "component and kind are required", http.StatusBadRequest)
		return nil
	}

	n := r.registry.Resolve(component, faults.Kind(kind))
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{"resolved": n})
}

// GET /health runs the pipeline health check
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) error {
	report := r.orch.HealthCheck(req.Context())

	code := http.StatusOK
	if report.Overall == digest.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(report)
}
