package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/vigilstack/vigil-healer/internal/cache"
	"github.com/vigilstack/vigil-healer/internal/models"
)

// Sentinel errors exposed so the detector can classify store failures
// without parsing message text.
var (
	// ErrNoData means the query succeeded but the window held no samples.
	ErrNoData = errors.New("no metrics in window")
	// ErrSchemaNotFound means the bucket or measurement does not exist yet.
	ErrSchemaNotFound = errors.New("metrics bucket not found")
	// ErrPermissionDenied means the store rejected our credentials.
	ErrPermissionDenied = errors.New("metrics store permission denied")
)

// InfluxStore queries the InfluxDB metrics warehouse for per-service health
// samples. Aggregated summaries are cached for a short TTL to keep repeated
// heal triggers from hammering the store.
type InfluxStore struct {
	client      influxdb2.Client
	queryAPI    api.QueryAPI
	bucket      string
	measurement string
	timeout     time.Duration
	cacheProv   cache.Provider
	summaryTTL  time.Duration
	logger      *slog.Logger
}

// InfluxConfig holds connection and query parameters for the store.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Timeout     time.Duration
}

// NewInfluxStore constructs a store client. The cache provider may be a
// NoopProvider when caching is disabled.
func NewInfluxStore(cfg InfluxConfig, cacheProv cache.Provider, summaryTTL time.Duration, logger *slog.Logger) *InfluxStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProv == nil {
		cacheProv = cache.NoopProvider{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())))

	return &InfluxStore{
		client:      client,
		queryAPI:    client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: cfg.Measurement,
		timeout:     cfg.Timeout,
		cacheProv:   cacheProv,
		summaryTTL:  summaryTTL,
		logger:      logger,
	}
}

const summaryFlux = `
from(bucket: params.bucket)
  |> range(start: params.start, stop: params.stop)
  |> filter(fn: (r) => r._measurement == params.measurement)
  |> filter(fn: (r) => r.service_id == params.service)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
`

const recentFlux = `
from(bucket: params.bucket)
  |> range(start: -24h)
  |> filter(fn: (r) => r._measurement == params.measurement)
  |> filter(fn: (r) => r.service_id == params.service)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: params.limit)
`

// Summary aggregates health samples for one service over the trailing
// window [now-window, now] into a single MetricsSummary. Null fields are
// treated as zero before arithmetic. Returns ErrNoData when the window is
// empty; never returns a partially filled summary alongside an error.
func (s *InfluxStore) Summary(ctx context.Context, service string, window time.Duration) (*models.MetricsSummary, error) {
	cacheKey := fmt.Sprintf("summary:%s:%s", service, window)
	if payload, err := s.cacheProv.Get(ctx, cacheKey); err == nil {
		var cached models.MetricsSummary
		if err := json.Unmarshal(payload, &cached); err == nil {
			return &cached, nil
		}
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := struct {
		Bucket      string    `json:"bucket"`
		Measurement string    `json:"measurement"`
		Service     string    `json:"service"`
		Start       time.Time `json:"start"`
		Stop        time.Time `json:"stop"`
	}{s.bucket, s.measurement, service, start, end}

	result, err := s.queryAPI.QueryWithParams(ctx, summaryFlux, params)
	if err != nil {
		return nil, classifyStoreError("store.summary", err)
	}

	summary := models.MetricsSummary{ServiceID: service}
	var latencySum, lagSum, errSum float64
	for result.Next() {
		rec := result.Record()
		latency := asFloat(rec.ValueByKey("latency_ms"))
		lag := asFloat(rec.ValueByKey("kafka_lag"))
		errRate := asFloat(rec.ValueByKey("error_rate"))
		status, _ := rec.ValueByKey("status").(string)

		latencySum += latency
		lagSum += lag
		errSum += errRate
		if latency > summary.MaxLatencyMS {
			summary.MaxLatencyMS = latency
		}
		if lag > summary.MaxKafkaLag {
			summary.MaxKafkaLag = lag
		}
		switch status {
		case "DEGRADED":
			summary.DegradedCount++
		case "CRITICAL":
			summary.CriticalCount++
		}
		summary.SampleCount++
	}
	if err := result.Err(); err != nil {
		return nil, classifyStoreError("store.summary", err)
	}
	if summary.SampleCount == 0 {
		return nil, ErrNoData
	}

	n := float64(summary.SampleCount)
	summary.AvgLatencyMS = latencySum / n
	summary.AvgKafkaLag = lagSum / n
	summary.AvgErrorRate = errSum / n

	if payload, err := json.Marshal(summary); err == nil {
		if err := s.cacheProv.Set(ctx, cacheKey, payload, s.summaryTTL); err != nil {
			s.logger.Debug("summary cache write failed", slog.Any("error", err))
		}
	}

	return &summary, nil
}

// RecentSamples returns up to limit raw samples for a service, newest first.
func (s *InfluxStore) RecentSamples(ctx context.Context, service string, limit int) ([]models.MetricSample, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := struct {
		Bucket      string `json:"bucket"`
		Measurement string `json:"measurement"`
		Service     string `json:"service"`
		Limit       int    `json:"limit"`
	}{s.bucket, s.measurement, service, limit}

	result, err := s.queryAPI.QueryWithParams(ctx, recentFlux, params)
	if err != nil {
		return nil, classifyStoreError("store.recent", err)
	}

	samples := make([]models.MetricSample, 0, limit)
	for result.Next() {
		rec := result.Record()
		status, _ := rec.ValueByKey("status").(string)
		samples = append(samples, models.MetricSample{
			Timestamp:   rec.Time(),
			ServiceID:   service,
			LatencyMS:   asFloat(rec.ValueByKey("latency_ms")),
			KafkaLag:    int64(asFloat(rec.ValueByKey("kafka_lag"))),
			Status:      status,
			ErrorRate:   asFloat(rec.ValueByKey("error_rate")),
			CPUUsage:    asFloat(rec.ValueByKey("cpu_usage")),
			MemoryUsage: asFloat(rec.ValueByKey("memory_usage")),
		})
	}
	if err := result.Err(); err != nil {
		return nil, classifyStoreError("store.recent", err)
	}
	return samples, nil
}

// Close releases the underlying HTTP client.
func (s *InfluxStore) Close() {
	s.client.Close()
}

func classifyStoreError(op string, err error) error {
	var httpErr *influxhttp.Error
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 404:
			return fmt.Errorf("%w: %s: %v", ErrSchemaNotFound, op, err)
		case 401, 403:
			return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// asFloat treats null/absent fields as zero, matching how the warehouse
// aggregation handled them before this service existed.
func asFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	case uint64:
		return float64(value)
	default:
		return 0
	}
}
