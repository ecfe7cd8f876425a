package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vigilstack/vigil-healer/internal/config"
	"github.com/vigilstack/vigil-healer/internal/engine"
	"github.com/vigilstack/vigil-healer/internal/history"
	"github.com/vigilstack/vigil-healer/internal/infra"
	"github.com/vigilstack/vigil-healer/internal/models"
)

type stubStore struct {
	summary *models.MetricsSummary
	samples []models.MetricSample
	err     error
}

func (s *stubStore) Summary(context.Context, string, time.Duration) (*models.MetricsSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

func (s *stubStore) RecentSamples(context.Context, string, int) ([]models.MetricSample, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.samples, nil
}

type stubReasoner struct {
	response string
}

func (s *stubReasoner) Generate(context.Context, string) (string, error) { return s.response, nil }
func (s *stubReasoner) Provider() string                                 { return "ollama" }
func (s *stubReasoner) Model() string                                    { return "llama3.1" }

type stubController struct{}

func (stubController) Scale(context.Context, string, int, int) error { return nil }
func (stubController) Restart(context.Context, string) error         { return nil }
func (stubController) Describe(context.Context, string) (infra.ServiceStatus, error) {
	return infra.ServiceStatus{Ready: true}, nil
}

func newTestService(store *stubStore, reasoner *stubReasoner) (*HealService, *history.Ring) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ring := history.NewRing(0)
	pipeline := engine.NewPipeline(
		logger,
		engine.NewDetector(store, logger),
		engine.NewPredictor(reasoner, time.Minute, logger),
		engine.NewHealer(stubController{}, time.Millisecond, logger),
		ring,
		config.DetectorConfig{WindowMinutes: 5, LatencyThresholdMS: 500, KafkaLagThreshold: 5000},
	)
	return NewHealService(logger, pipeline, ring, store, reasoner), ring
}

func TestHealRequiresService(t *testing.T) {
	service, _ := newTestService(&stubStore{}, &stubReasoner{})

	_, err := service.Heal(context.Background(), models.HealRequest{})
	if !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("err = %v, want ErrServiceRequired", err)
	}
}

func TestHealDefaultsAlertMessage(t *testing.T) {
	store := &stubStore{summary: &models.MetricsSummary{AvgLatencyMS: 50, SampleCount: 10}}
	service, _ := newTestService(store, &stubReasoner{})

	report, err := service.Heal(context.Background(), models.HealRequest{Service: "payments"})
	if err != nil {
		t.Fatalf("heal: %v", err)
	}
	if report.AlertMessage != "Anomaly detected" {
		t.Errorf("alert = %q", report.AlertMessage)
	}
}

func TestHealRecordsIncident(t *testing.T) {
	store := &stubStore{summary: &models.MetricsSummary{AvgLatencyMS: 2000, AvgErrorRate: 0.1, SampleCount: 10}}
	reasoner := &stubReasoner{
		response: `{"risk_score": 85, "root_cause": "saturation", "recommended_action": "scale_up", "confidence": "high", "reasoning": "load"}`,
	}
	service, ring := newTestService(store, reasoner)

	report, err := service.Heal(context.Background(), models.HealRequest{Service: "payments", AlertMessage: "page"})
	if err != nil {
		t.Fatalf("heal: %v", err)
	}
	if !report.Summary.Success || report.Summary.ActionTaken != models.ActionScaleUp {
		t.Errorf("summary = %+v", report.Summary)
	}
	if ring.Len() != 1 {
		t.Errorf("ring len = %d, want 1", ring.Len())
	}

	stats := service.HistoryStats()
	if stats.TotalIncidents != 1 || stats.ByService["payments"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	resp := service.History(10)
	if resp.Count != 1 || resp.Incidents[0].Service != "payments" {
		t.Errorf("history = %+v", resp)
	}
}

func TestRecentMetrics(t *testing.T) {
	store := &stubStore{samples: []models.MetricSample{
		{ServiceID: "payments", LatencyMS: 120},
		{ServiceID: "payments", LatencyMS: 130},
	}}
	service, _ := newTestService(store, &stubReasoner{})

	resp, err := service.RecentMetrics(context.Background(), "payments", 10)
	if err != nil {
		t.Fatalf("recent metrics: %v", err)
	}
	if resp.Count != 2 || resp.Service != "payments" {
		t.Errorf("resp = %+v", resp)
	}

	if _, err := service.RecentMetrics(context.Background(), "", 10); !errors.Is(err, ErrServiceRequired) {
		t.Errorf("err = %v, want ErrServiceRequired", err)
	}
}

func TestHealthReportsReasoner(t *testing.T) {
	service, _ := newTestService(&stubStore{}, &stubReasoner{})

	health := service.Health()
	if health.Status != "healthy" || health.Reasoner != "ollama" || health.Model != "llama3.1" {
		t.Errorf("health = %+v", health)
	}
}
