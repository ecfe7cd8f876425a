package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vigilstack/vigil-healer/internal/config"
	"github.com/vigilstack/vigil-healer/internal/history"
	"github.com/vigilstack/vigil-healer/internal/models"
)

// Pipeline sequences detection, prediction, normalization and healing for
// one service. Stages within a run are strictly sequential; separate runs
// may execute concurrently, sharing only the history ring.
type Pipeline struct {
	logger     *slog.Logger
	detector   *Detector
	predictor  *Predictor
	healer     *Healer
	ring       *history.Ring
	thresholds config.DetectorConfig
}

// NewPipeline constructs the heal pipeline.
func NewPipeline(
	logger *slog.Logger,
	detector *Detector,
	predictor *Predictor,
	healer *Healer,
	ring *history.Ring,
	thresholds config.DetectorConfig,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:     logger,
		detector:   detector,
		predictor:  predictor,
		healer:     healer,
		ring:       ring,
		thresholds: thresholds,
	}
}

// Heal runs the full workflow and always returns a complete IncidentReport,
// even when every downstream stage failed. When detection finds no anomaly
// the run short-circuits: the reasoner and the controller are never invoked.
func (p *Pipeline) Heal(ctx context.Context, service, alertMessage string) models.IncidentReport {
	start := time.Now().UTC()

	p.logger.Info("heal triggered",
		slog.String("service", service),
		slog.String("alert", alertMessage))

	detection := p.detector.Detect(ctx, service,
		p.thresholds.WindowMinutes,
		p.thresholds.LatencyThresholdMS,
		p.thresholds.KafkaLagThreshold)

	report := models.IncidentReport{
		IncidentID:   uuid.NewString(),
		Service:      service,
		AlertMessage: alertMessage,
		StartTime:    start,
		Detection:    detection,
	}

	if !detection.AnomalyDetected {
		report.EndTime = time.Now().UTC()
		report.DurationSeconds = report.EndTime.Sub(start).Seconds()
		report.Summary = models.ReportSummary{
			AnomalyDetected: false,
			ActionTaken:     models.ActionNone,
			Success:         true,
		}
		p.logger.Info("no anomaly detected, nothing to heal", slog.String("service", service))
		return report
	}

	prediction := p.predictor.Predict(ctx, service, detection)
	report.Prediction = &prediction

	action := NormalizeAction(prediction.RecommendedAction)

	healing := p.healer.Heal(ctx, service, action, prediction.RiskScore)
	report.Healing = &healing

	report.EndTime = time.Now().UTC()
	report.DurationSeconds = report.EndTime.Sub(start).Seconds()
	report.Summary = models.ReportSummary{
		AnomalyDetected: true,
		RiskScore:       prediction.RiskScore,
		ActionTaken:     action,
		Success:         healing.Success,
	}

	p.ring.Append(report)

	p.logger.Info("heal completed",
		slog.String("service", service),
		slog.String("action", string(action)),
		slog.Int("risk_score", prediction.RiskScore),
		slog.Bool("success", healing.Success),
		slog.Float64("duration_seconds", report.DurationSeconds))

	return report
}
