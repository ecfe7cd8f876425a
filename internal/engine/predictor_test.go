package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vigilstack/vigil-healer/internal/models"
)

type fakeReasoner struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompt   string
}

func (f *fakeReasoner) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompt = prompt
	return f.response, f.err
}

func degradedDetection() models.DetectionResult {
	return models.DetectionResult{
		Service:         "payments",
		AnomalyDetected: true,
		Metrics: &models.MetricsSummary{
			ServiceID:    "payments",
			AvgLatencyMS: 2100,
			AvgErrorRate: 0.08,
			SampleCount:  30,
		},
		Violations: []string{"Latency violation: 2100.00ms exceeds threshold 500ms"},
	}
}

func TestPredictParsesCleanJSON(t *testing.T) {
	reasoner := &fakeReasoner{
		response: `{"risk_score": 90, "root_cause": "Pool exhaustion", "recommended_action": "scale_up", "confidence": "high", "reasoning": "Capacity bound"}`,
	}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	assessment := predictor.Predict(context.Background(), "payments", degradedDetection())

	if !assessment.Success {
		t.Fatalf("expected success, got error %q", assessment.Error)
	}
	if assessment.RiskScore != 90 {
		t.Errorf("risk score = %d, want 90", assessment.RiskScore)
	}
	if assessment.RecommendedAction != "scale_up" {
		t.Errorf("action = %q, want scale_up", assessment.RecommendedAction)
	}
	if assessment.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", assessment.Confidence)
	}
}

func TestPredictStripsMarkdownFences(t *testing.T) {
	reasoner := &fakeReasoner{
		response: "Here is my analysis:\n```json\n{\"risk_score\": 60, \"root_cause\": \"GC pauses\", \"recommended_action\": \"restart\", \"confidence\": \"medium\", \"reasoning\": \"heap churn\"}\n```\nHope that helps!",
	}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	assessment := predictor.Predict(context.Background(), "payments", degradedDetection())

	if !assessment.Success {
		t.Fatalf("expected success, got error %q", assessment.Error)
	}
	if assessment.RiskScore != 60 || assessment.RecommendedAction != "restart" {
		t.Errorf("got risk=%d action=%q", assessment.RiskScore, assessment.RecommendedAction)
	}
}

func TestPredictTruncatedResponseUsesFallback(t *testing.T) {
	// One more opening brace than closing: the payload was cut off
	// mid-object, so the fallback must kick in regardless of content.
	reasoner := &fakeReasoner{
		response: `{"risk_score": 5, "root_cause": "ignore me", "recommended_action": "monitor"`,
	}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	assessment := predictor.Predict(context.Background(), "payments", degradedDetection())

	if !assessment.Success {
		t.Fatal("fallback assessments are successful")
	}
	if assessment.RiskScore != 85 {
		t.Errorf("risk score = %d, want 85 for degraded metrics", assessment.RiskScore)
	}
	if assessment.RecommendedAction != string(models.ActionScaleUp) {
		t.Errorf("action = %q, want scale_up", assessment.RecommendedAction)
	}
	if assessment.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", assessment.Confidence)
	}
}

func TestPredictFallbackNominalMetrics(t *testing.T) {
	detection := degradedDetection()
	detection.Metrics = &models.MetricsSummary{AvgLatencyMS: 600, AvgErrorRate: 0.02, SampleCount: 10}

	reasoner := &fakeReasoner{response: `{"risk_score": 99, "truncated": {`}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	assessment := predictor.Predict(context.Background(), "payments", detection)

	if assessment.RiskScore != 50 {
		t.Errorf("risk score = %d, want 50 below fallback thresholds", assessment.RiskScore)
	}
	if assessment.RecommendedAction != string(models.ActionMonitor) {
		t.Errorf("action = %q, want monitor", assessment.RecommendedAction)
	}
	if assessment.Confidence != models.ConfidenceMedium {
		t.Errorf("confidence = %q, want medium", assessment.Confidence)
	}
}

func TestPredictReasonerErrorFailsClosed(t *testing.T) {
	reasoner := &fakeReasoner{err: errors.New("dial tcp: connection refused")}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	assessment := predictor.Predict(context.Background(), "payments", degradedDetection())

	if assessment.Success {
		t.Fatal("reasoner failure must not report success")
	}
	if assessment.RiskScore != 0 {
		t.Errorf("risk score = %d, want 0", assessment.RiskScore)
	}
	if assessment.RecommendedAction != string(models.ActionMonitor) {
		t.Errorf("action = %q, want monitor", assessment.RecommendedAction)
	}
	if assessment.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %q, want low", assessment.Confidence)
	}
	if assessment.Error == "" {
		t.Error("error message should be populated")
	}
}

func TestPredictUnparseableBalancedPayloadFailsClosed(t *testing.T) {
	reasoner := &fakeReasoner{response: `{"risk_score": "not a number"} {"noise": true}`}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	assessment := predictor.Predict(context.Background(), "payments", degradedDetection())

	if assessment.Success {
		t.Fatal("parse failure must not report success")
	}
	if !strings.Contains(assessment.Error, "parse reasoner response") {
		t.Errorf("error = %q", assessment.Error)
	}
}

func TestPredictPromptContainsConstraints(t *testing.T) {
	reasoner := &fakeReasoner{response: `{"risk_score": 10, "recommended_action": "monitor", "confidence": "low"}`}
	predictor := NewPredictor(reasoner, time.Minute, quietLogger())

	predictor.Predict(context.Background(), "payments", degradedDetection())

	for _, want := range []string{
		"recommended_action MUST be one of: scale_up, restart, monitor, escalate_human",
		"Service: payments",
		"Latency violation",
	} {
		if !strings.Contains(reasoner.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
