package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vigilstack/vigil-healer/internal/engine"
	"github.com/vigilstack/vigil-healer/internal/history"
	"github.com/vigilstack/vigil-healer/internal/metrics"
	"github.com/vigilstack/vigil-healer/internal/models"
	"github.com/vigilstack/vigil-healer/internal/utils"
)

// ErrServiceRequired is returned when a heal request names no service.
var ErrServiceRequired = errors.New("service is required")

// SampleQuerier defines the raw-sample lookup used by the recent-metrics
// endpoint.
type SampleQuerier interface {
	RecentSamples(ctx context.Context, service string, limit int) ([]models.MetricSample, error)
}

// ReasonerInfo exposes the identity of the configured reasoning backend
// for the liveness payload.
type ReasonerInfo interface {
	Provider() string
	Model() string
}

// HealService is the facade the HTTP layer talks to. It owns request
// validation, run accounting, and history queries; the pipeline owns the
// actual workflow.
type HealService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	ring      *history.Ring
	samples   SampleQuerier
	reasoner  ReasonerInfo
	latencies *utils.LatencyTracker
}

// NewHealService constructs the service facade.
func NewHealService(
	logger *slog.Logger,
	pipeline *engine.Pipeline,
	ring *history.Ring,
	samples SampleQuerier,
	reasoner ReasonerInfo,
) *HealService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealService{
		logger:    logger,
		pipeline:  pipeline,
		ring:      ring,
		samples:   samples,
		reasoner:  reasoner,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Heal validates the request and runs the full pipeline.
func (s *HealService) Heal(ctx context.Context, req models.HealRequest) (models.IncidentReport, error) {
	if req.Service == "" {
		return models.IncidentReport{}, ErrServiceRequired
	}
	alert := req.AlertMessage
	if alert == "" {
		alert = "Anomaly detected"
	}

	start := time.Now()
	report := s.pipeline.Heal(ctx, req.Service, alert)
	duration := time.Since(start)

	outcome := metrics.OutcomeSuccess
	if !report.Summary.Success {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveHeal(duration, outcome)
	if report.Healing != nil {
		metrics.RecordAction(string(report.Healing.Action), report.Healing.Success)
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("heal latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	return report, nil
}

// History returns the most recent incidents, oldest first.
func (s *HealService) History(limit int) models.HistoryResponse {
	incidents := s.ring.Last(limit)
	return models.HistoryResponse{Count: len(incidents), Incidents: incidents}
}

// HistoryStats summarises the incident ring.
func (s *HealService) HistoryStats() models.HistoryStats {
	return s.ring.Stats()
}

// RecentMetrics fetches up to limit raw samples for one service.
func (s *HealService) RecentMetrics(ctx context.Context, service string, limit int) (models.RecentMetricsResponse, error) {
	if service == "" {
		return models.RecentMetricsResponse{}, ErrServiceRequired
	}
	samples, err := s.samples.RecentSamples(ctx, service, limit)
	if err != nil {
		s.logger.Error("recent samples query failed", slog.String("service", service), slog.Any("error", err))
		return models.RecentMetricsResponse{}, err
	}
	return models.RecentMetricsResponse{Service: service, Count: len(samples), Metrics: samples}, nil
}

// Health reports liveness and the configured reasoning backend.
func (s *HealService) Health() models.HealthResponse {
	resp := models.HealthResponse{Status: "healthy"}
	if s.reasoner != nil {
		resp.Reasoner = s.reasoner.Provider()
		resp.Model = s.reasoner.Model()
	}
	return resp
}

// LatencyP95 returns the current p95 heal latency.
func (s *HealService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
