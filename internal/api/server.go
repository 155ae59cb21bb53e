// Package api provides the HTTP surface for Sentry: event ingestion,
// metric and anomaly queries, forecasts, incidents, workflows, regions,
// and operator feedback.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentrymesh/sentry/internal/domain"
	"github.com/sentrymesh/sentry/internal/health"
	"github.com/sentrymesh/sentry/internal/infra/forecast"
	"github.com/sentrymesh/sentry/internal/infra/incident"
	"github.com/sentrymesh/sentry/internal/infra/pipeline"
	"github.com/sentrymesh/sentry/internal/infra/region"
	"github.com/sentrymesh/sentry/internal/infra/sqlite"
	"github.com/sentrymesh/sentry/internal/infra/training"
	"github.com/sentrymesh/sentry/internal/infra/window"
	"github.com/sentrymesh/sentry/internal/infra/workflow"
)

// Version is the API version string reported by /api/version.
const Version = "0.1.0"

// Services collects the components the server exposes. Nil fields
// disable their routes.
type Services struct {
	Pipeline   *pipeline.Pipeline
	Store      *sqlite.DB
	Incidents  *incident.Manager
	Forensics  *incident.Collector
	Workflows  *workflow.Orchestrator
	Regions    *region.Coordinator
	Forecaster *forecast.Forecaster
	Training   *training.Orchestrator
	Monitor    *health.Monitor
}

// Server is the Sentry HTTP API server.
type Server struct {
	svc            Services
	metricsEnabled bool
}

// NewServer creates an API server over the given services.
func NewServer(svc Services) *Server {
	return &Server{svc: svc}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		r.Post("/events", s.handleIngest)

		r.Get("/metrics/query", s.handleMetricsQuery)
		r.Get("/metrics/summary", s.handleMetricsSummary)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/forecast", s.handleForecast)

		r.Get("/incidents", s.handleListIncidents)
		r.Get("/incidents/{id}", s.handleGetIncident)
		r.Get("/incidents/{id}/evidence", s.handleIncidentEvidence)
		r.Get("/incidents/{id}/plan", s.handleIncidentPlan)
		r.Get("/incidents/{id}/postmortem", s.handleIncidentPostMortem)

		r.Get("/workflows", s.handleListWorkflows)
		r.Get("/workflows/{id}", s.handleGetWorkflow)

		r.Get("/regions", s.handleRegions)
		r.Get("/regions/load", s.handleRegionLoad)
		r.Get("/regions/failovers", s.handleFailovers)
		r.Post("/regions/metrics", s.handleRegionMetrics)

		r.Post("/feedback", s.handleFeedback)
		r.Get("/models/{name}/versions", s.handleModelVersions)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.svc.Monitor == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	status := s.svc.Monitor.Overall()
	code := http.StatusOK
	if status == "critical" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": s.svc.Monitor.Components(),
		"checks":     s.svc.Monitor.Statuses(),
	})
}

// ─── Ingestion ──────────────────────────────────────────────────────────────

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event body")
		return
	}

	err := s.svc.Pipeline.Ingest(r.Context(), raw)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, domain.ErrDuplicateEvent):
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// ─── Metrics & Analytics ────────────────────────────────────────────────────

func (s *Server) handleMetricsQuery(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}
	step, err := window.ParseWindow(r.URL.Query().Get("step"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "step must be one of 1s, 1m, 5m, 1h, 1d")
		return
	}
	start, err := parseTime(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC 3339")
		return
	}
	end, err := parseTime(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC 3339")
		return
	}

	points, err := s.svc.Store.QueryRange(metric, start, end, step)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metric": metric, "points": points})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	win, err := window.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "window must be one of 1s, 1m, 5m, 1h, 1d")
		return
	}

	summary, err := s.svc.Pipeline.Summary(metric, win)
	switch {
	case errors.Is(err, domain.ErrUnknownMetric):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": s.svc.Pipeline.RecentAnomalies(limit),
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	horizon := 24 * time.Hour
	if h := r.URL.Query().Get("horizon"); h != "" {
		parsed, err := time.ParseDuration(h)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "horizon must be a positive duration")
			return
		}
		horizon = parsed
	}
	current := 0.0
	if c := r.URL.Query().Get("current"); c != "" {
		parsed, err := strconv.ParseFloat(c, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			writeError(w, http.StatusBadRequest, "current must be in [0,1]")
			return
		}
		current = parsed
	}
	writeJSON(w, http.StatusOK, s.svc.Forecaster.Predict(current, horizon))
}

// ─── Incidents & Workflows ──────────────────────────────────────────────────

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":   s.svc.Incidents.Active(),
		"resolved": s.svc.Incidents.Resolved(queryInt(r, "limit", 50)),
	})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.svc.Incidents.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrIncidentNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleIncidentEvidence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.svc.Incidents.Find(id); !ok {
		writeError(w, http.StatusNotFound, domain.ErrIncidentNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evidence": s.svc.Forensics.ForIncident(id),
	})
}

func (s *Server) handleIncidentPlan(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.svc.Incidents.Find(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrIncidentNotFound.Error())
		return
	}
	exposure := r.URL.Query().Get("data_exposure") == "true"
	writeJSON(w, http.StatusOK, incident.PlanResponse(inc, exposure))
}

func (s *Server) handleIncidentPostMortem(w http.ResponseWriter, r *http.Request) {
	inc, ok := s.svc.Incidents.Find(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrIncidentNotFound.Error())
		return
	}
	if inc.Status != domain.IncidentResolved && inc.Status != domain.IncidentPostMortem {
		writeError(w, http.StatusConflict, "incident is not resolved yet")
		return
	}
	evidence := s.svc.Forensics.ForIncident(inc.ID)
	writeJSON(w, http.StatusOK, incident.GeneratePostMortem(inc, evidence, time.Now()))
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": s.svc.Workflows.Recent(queryInt(r, "limit", 50)),
	})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.svc.Workflows.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrWorkflowNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// ─── Regions ────────────────────────────────────────────────────────────────

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	regions := s.svc.Regions.Regions()
	out := make([]map[string]any, 0, len(regions))
	for _, cfg := range regions {
		entry := map[string]any{"config": cfg}
		if m, ok := s.svc.Regions.Metrics(cfg.ID); ok {
			entry["metrics"] = m
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": out})
}

func (s *Server) handleRegionLoad(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Regions.Distribution())
}

func (s *Server) handleRegionMetrics(w http.ResponseWriter, r *http.Request) {
	var snapshots map[domain.RegionID]domain.RegionMetrics
	if err := json.NewDecoder(r.Body).Decode(&snapshots); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metrics body")
		return
	}
	plans := s.svc.Regions.UpdateMetrics(snapshots)
	writeJSON(w, http.StatusOK, map[string]any{
		"failovers":    plans,
		"distribution": s.svc.Regions.Distribution(),
	})
}

func (s *Server) handleFailovers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"failovers": s.svc.Regions.Failovers(),
	})
}

// ─── Training ───────────────────────────────────────────────────────────────

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb domain.OperationalFeedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid feedback body")
		return
	}
	if fb.ThreatID == "" {
		writeError(w, http.StatusBadRequest, "threat_id is required")
		return
	}
	s.svc.Training.Submit(fb)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleModelVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	versions := s.svc.Training.Registry().Versions(name)
	if len(versions) == 0 {
		writeError(w, http.StatusNotFound, domain.ErrModelNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
