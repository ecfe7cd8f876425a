package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigilstack/vigil-healer/internal/models"
	"github.com/vigilstack/vigil-healer/internal/repo"
)

// MetricsQuerier defines the metrics-store behaviour used by the detector.
type MetricsQuerier interface {
	Summary(ctx context.Context, service string, window time.Duration) (*models.MetricsSummary, error)
}

// errorRateThreshold is the fixed 5% rule. Unlike the latency and lag
// thresholds it is not tunable per call.
const errorRateThreshold = 0.05

// Detector applies threshold rules to a windowed metrics summary.
type Detector struct {
	store  MetricsQuerier
	logger *slog.Logger
}

// NewDetector constructs a Detector.
func NewDetector(store MetricsQuerier, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, logger: logger}
}

// Detect evaluates the three rules (latency, kafka lag, error rate, in that
// order) against the trailing window. It never returns an error: data
// absence, missing schema, permission problems and query failures are all
// encoded in the result so the caller can always proceed.
func (d *Detector) Detect(ctx context.Context, service string, windowMinutes int, latencyThresholdMS, kafkaLagThreshold float64) models.DetectionResult {
	result := models.DetectionResult{
		Service:       service,
		QueryTime:     time.Now().UTC(),
		WindowMinutes: windowMinutes,
	}

	summary, err := d.store.Summary(ctx, service, time.Duration(windowMinutes)*time.Minute)
	if err != nil {
		return d.classify(result, service, windowMinutes, err)
	}

	result.Metrics = summary

	if summary.AvgLatencyMS > latencyThresholdMS {
		result.Violations = append(result.Violations,
			fmt.Sprintf("Latency violation: %.2fms exceeds threshold %gms", summary.AvgLatencyMS, latencyThresholdMS))
	}
	if summary.AvgKafkaLag > kafkaLagThreshold {
		result.Violations = append(result.Violations,
			fmt.Sprintf("Kafka lag violation: %.0f messages exceeds threshold %g", summary.AvgKafkaLag, kafkaLagThreshold))
	}
	if summary.AvgErrorRate > errorRateThreshold {
		result.Violations = append(result.Violations,
			fmt.Sprintf("Error rate violation: %.2f%% exceeds 5%% threshold", summary.AvgErrorRate*100))
	}

	result.AnomalyDetected = len(result.Violations) > 0
	if result.AnomalyDetected {
		result.Recommendation = fmt.Sprintf(
			"CRITICAL: %s requires immediate attention. Recommend scaling replicas and investigating root cause. Violations: %d",
			service, len(result.Violations))
		d.logger.Warn("anomaly detected",
			slog.String("service", service),
			slog.Int("violations", len(result.Violations)))
	} else {
		result.Recommendation = fmt.Sprintf("%s operating within normal parameters.", service)
	}

	return result
}

func (d *Detector) classify(result models.DetectionResult, service string, windowMinutes int, err error) models.DetectionResult {
	switch {
	case errors.Is(err, repo.ErrNoData):
		result.ErrorKind = models.DetectionErrorNoData
		result.Recommendation = fmt.Sprintf(
			"No metrics found for %s in last %d minutes. Verify service is running and exporting metrics.",
			service, windowMinutes)
	case errors.Is(err, repo.ErrSchemaNotFound):
		result.ErrorKind = models.DetectionErrorTableNotFound
		result.Recommendation = "Metrics bucket not found. Run the warehouse setup to provision the schema."
	case errors.Is(err, repo.ErrPermissionDenied):
		result.ErrorKind = models.DetectionErrorPermissionDenied
		result.Recommendation = fmt.Sprintf(
			"Permission denied: ensure the store token grants read access. Error: %v", err)
	default:
		result.ErrorKind = models.DetectionErrorQueryFailed
		result.Recommendation = fmt.Sprintf("Error querying metrics: %v", err)
		d.logger.Error("metrics query failed", slog.String("service", service), slog.Any("error", err))
	}
	return result
}
