package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vigilstack/vigil-healer/internal/config"
	"github.com/vigilstack/vigil-healer/internal/history"
	"github.com/vigilstack/vigil-healer/internal/infra"
	"github.com/vigilstack/vigil-healer/internal/models"
)

func testThresholds() config.DetectorConfig {
	return config.DetectorConfig{
		WindowMinutes:      5,
		LatencyThresholdMS: 500,
		KafkaLagThreshold:  5000,
	}
}

func newTestPipeline(store *fakeStore, reasoner *fakeReasoner, controller *fakeController, ring *history.Ring) *Pipeline {
	logger := quietLogger()
	return NewPipeline(
		logger,
		NewDetector(store, logger),
		NewPredictor(reasoner, time.Minute, logger),
		NewHealer(controller, time.Millisecond, logger),
		ring,
		testThresholds(),
	)
}

func TestPipelineShortCircuitsOnHealthyService(t *testing.T) {
	store := &fakeStore{summary: &models.MetricsSummary{
		AvgLatencyMS: 100,
		AvgKafkaLag:  10,
		AvgErrorRate: 0.001,
		SampleCount:  40,
	}}
	reasoner := &fakeReasoner{}
	controller := &fakeController{}
	ring := history.NewRing(0)

	report := newTestPipeline(store, reasoner, controller, ring).
		Heal(context.Background(), "search", "manual check")

	if report.Detection.AnomalyDetected {
		t.Fatal("healthy metrics must not be anomalous")
	}
	if reasoner.calls != 0 {
		t.Errorf("reasoner called %d times, want 0 on short-circuit", reasoner.calls)
	}
	if controller.scaleCalls+controller.restartCalls+controller.describeCalls != 0 {
		t.Error("controller must not be touched on short-circuit")
	}
	if report.Prediction != nil || report.Healing != nil {
		t.Error("short-circuit reports carry no prediction or healing")
	}
	if report.Summary.ActionTaken != models.ActionNone || !report.Summary.Success {
		t.Errorf("summary = %+v", report.Summary)
	}
	if ring.Len() != 0 {
		t.Errorf("history holds %d incidents, short-circuit runs are not recorded", ring.Len())
	}
	if report.IncidentID == "" {
		t.Error("every run gets an incident id")
	}
}

func TestPipelineEndToEndScaleUp(t *testing.T) {
	store := &fakeStore{summary: &models.MetricsSummary{
		ServiceID:    "user-api",
		AvgLatencyMS: 2200,
		AvgKafkaLag:  300,
		AvgErrorRate: 0.09,
		SampleCount:  25,
	}}
	reasoner := &fakeReasoner{
		response: `{"risk_score": 90, "root_cause": "Thread pool saturation", "recommended_action": "scale_out", "confidence": "high", "reasoning": "Latency and errors track load"}`,
	}
	controller := &fakeController{status: infra.ServiceStatus{Ready: true}}
	ring := history.NewRing(0)

	report := newTestPipeline(store, reasoner, controller, ring).
		Heal(context.Background(), "user-api", "PagerDuty: latency spike")

	if !report.Detection.AnomalyDetected {
		t.Fatal("expected anomaly")
	}
	if report.Prediction == nil || report.Prediction.RiskScore != 90 {
		t.Fatalf("prediction = %+v", report.Prediction)
	}
	// scale_out normalizes to scale_up, risk 90 lands in the top tier.
	if report.Healing == nil || report.Healing.Action != models.ActionScaleUp {
		t.Fatalf("healing = %+v", report.Healing)
	}
	if controller.lastMin != 5 || controller.lastMax != 20 {
		t.Errorf("scaled to %d/%d, want 5/20", controller.lastMin, controller.lastMax)
	}
	if report.Healing.Verification != models.VerificationHealthy {
		t.Errorf("verification = %q", report.Healing.Verification)
	}
	if report.Summary.ActionTaken != models.ActionScaleUp || !report.Summary.Success {
		t.Errorf("summary = %+v", report.Summary)
	}
	if ring.Len() != 1 {
		t.Errorf("history holds %d incidents, want 1", ring.Len())
	}
	if report.DurationSeconds < 0 {
		t.Errorf("duration = %f", report.DurationSeconds)
	}
}

func TestPipelineDegradedStagesStillProduceReport(t *testing.T) {
	// Reasoner unreachable: prediction fails closed to monitor, the
	// healer still runs it, and the run counts as a success overall.
	store := &fakeStore{summary: &models.MetricsSummary{
		AvgLatencyMS: 2200,
		AvgErrorRate: 0.09,
		SampleCount:  25,
	}}
	reasoner := &fakeReasoner{err: fmt.Errorf("dial tcp: connection refused")}
	controller := &fakeController{}
	ring := history.NewRing(0)

	report := newTestPipeline(store, reasoner, controller, ring).
		Heal(context.Background(), "user-api", "alert")

	if report.Prediction == nil || report.Prediction.Success {
		t.Fatalf("prediction = %+v", report.Prediction)
	}
	if report.Healing == nil || report.Healing.Action != models.ActionMonitor {
		t.Fatalf("healing = %+v", report.Healing)
	}
	if !report.Summary.Success {
		t.Error("monitor action succeeds even after a failed prediction")
	}
	if ring.Len() != 1 {
		t.Errorf("history holds %d incidents, want 1", ring.Len())
	}
}

func TestPipelineConcurrentRuns(t *testing.T) {
	store := &fakeStore{summary: &models.MetricsSummary{
		AvgLatencyMS: 2200,
		AvgErrorRate: 0.09,
		SampleCount:  25,
	}}
	reasoner := &fakeReasoner{
		response: `{"risk_score": 55, "root_cause": "load", "recommended_action": "monitor", "confidence": "medium", "reasoning": "watch"}`,
	}
	controller := &fakeController{}
	ring := history.NewRing(0)
	pipeline := newTestPipeline(store, reasoner, controller, ring)

	const runs = 16
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pipeline.Heal(context.Background(), fmt.Sprintf("svc-%d", i), "alert")
		}(i)
	}
	wg.Wait()

	if ring.Len() != runs {
		t.Errorf("history holds %d incidents, want %d", ring.Len(), runs)
	}
	seen := make(map[string]bool)
	for _, incident := range ring.Last(runs) {
		if seen[incident.IncidentID] {
			t.Errorf("duplicate incident id %s", incident.IncidentID)
		}
		seen[incident.IncidentID] = true
	}
}
