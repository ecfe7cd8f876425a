package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vigilstack/vigil-healer/internal/models"
)

// Reasoner is the slice of the reasoning-service client the predictor needs.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Fallback thresholds used when the reasoner returns a truncated payload.
// They intentionally match the original alerting heuristics, not the
// per-call detector thresholds, so the fallback stays deterministic.
const (
	fallbackLatencyMS = 1500
	fallbackErrorRate = 0.05
)

// Predictor asks the reasoning service to assess failure risk for a service
// whose detection pass found violations.
type Predictor struct {
	reasoner Reasoner
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPredictor constructs a Predictor. timeout bounds each reasoner call.
func NewPredictor(reasoner Reasoner, timeout time.Duration, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Predictor{reasoner: reasoner, timeout: timeout, logger: logger}
}

// Predict returns a structurally valid RiskAssessment in every case: parsed
// reasoner output, the deterministic fallback for truncated output, or a
// low-confidence monitor default when the call or parse fails outright.
func (p *Predictor) Predict(ctx context.Context, service string, detection models.DetectionResult) models.RiskAssessment {
	prompt := p.buildPrompt(service, detection)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.reasoner.Generate(callCtx, prompt)
	if err != nil {
		p.logger.Warn("reasoner call failed", slog.String("service", service), slog.Any("error", err))
		return failedAssessment(err.Error())
	}

	text := strings.TrimSpace(raw)

	// A mismatched brace count means the payload was truncated mid-object;
	// parsing would only yield garbage, so synthesize from raw metrics.
	if strings.Count(text, "{") != strings.Count(text, "}") {
		p.logger.Warn("truncated reasoner response, using fallback",
			slog.String("service", service), slog.Int("length", len(text)))
		return fallbackAssessment(detection.Metrics)
	}

	text = stripCodeFences(text)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start != -1 && end > start {
		text = text[start : end+1]
	}

	var parsed struct {
		RiskScore         int               `json:"risk_score"`
		RootCause         string            `json:"root_cause"`
		RecommendedAction string            `json:"recommended_action"`
		Confidence        models.Confidence `json:"confidence"`
		Reasoning         string            `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		p.logger.Warn("unparseable reasoner response", slog.String("service", service), slog.Any("error", err))
		return failedAssessment(fmt.Sprintf("parse reasoner response: %v", err))
	}

	return models.RiskAssessment{
		Success:           true,
		RiskScore:         parsed.RiskScore,
		RootCause:         parsed.RootCause,
		RecommendedAction: parsed.RecommendedAction,
		Confidence:        parsed.Confidence,
		Reasoning:         parsed.Reasoning,
	}
}

func (p *Predictor) buildPrompt(service string, detection models.DetectionResult) string {
	metricsJSON := "{}"
	if detection.Metrics != nil {
		if data, err := json.Marshal(detection.Metrics); err == nil {
			metricsJSON = string(data)
		}
	}

	violations := "- None"
	if len(detection.Violations) > 0 {
		var b strings.Builder
		for i, v := range detection.Violations {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(v)
		}
		violations = b.String()
	}

	return fmt.Sprintf(`Analyze these microservice metrics and respond with ONLY valid JSON.

Service: %s
Metrics: %s

Violations:
%s

IMPORTANT: recommended_action MUST be one of: scale_up, restart, monitor, escalate_human

Respond with this EXACT JSON format (no markdown, no extra text):
{"risk_score": 85, "root_cause": "High latency indicates resource constraints", "recommended_action": "scale_up", "confidence": "high", "reasoning": "Service requires scaling"}

Analyze and return ONLY the JSON:`, service, metricsJSON, violations)
}

// fallbackAssessment derives a reproducible prediction from raw metrics
// alone. It must never consult the malformed reasoner payload.
func fallbackAssessment(metrics *models.MetricsSummary) models.RiskAssessment {
	var avgLatency, errorRate float64
	if metrics != nil {
		avgLatency = metrics.AvgLatencyMS
		errorRate = metrics.AvgErrorRate
	}

	if avgLatency > fallbackLatencyMS || errorRate > fallbackErrorRate {
		return models.RiskAssessment{
			Success:           true,
			RiskScore:         85,
			RootCause:         "High latency and error rate indicate resource constraints",
			RecommendedAction: string(models.ActionScaleUp),
			Confidence:        models.ConfidenceHigh,
			Reasoning:         "Metrics exceed thresholds, scaling recommended",
		}
	}
	return models.RiskAssessment{
		Success:           true,
		RiskScore:         50,
		RootCause:         "Minor performance degradation detected",
		RecommendedAction: string(models.ActionMonitor),
		Confidence:        models.ConfidenceMedium,
		Reasoning:         "Metrics slightly elevated, continue monitoring",
	}
}

func failedAssessment(message string) models.RiskAssessment {
	return models.RiskAssessment{
		Success:           false,
		RiskScore:         0,
		RecommendedAction: string(models.ActionMonitor),
		Confidence:        models.ConfidenceLow,
		Error:             message,
	}
}

// stripCodeFences unwraps a payload the reasoner wrapped in markdown fences.
func stripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	for _, part := range strings.Split(text, "```") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "json")
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "{") || strings.HasPrefix(part, "[") {
			return part
		}
	}
	return text
}
