package models

import "time"

// MetricsSummary holds aggregated statistics for one service over one time
// window. Instances are built once by the metrics store layer and never
// mutated afterwards.
type MetricsSummary struct {
	ServiceID     string  `json:"service_id"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`
	MaxLatencyMS  float64 `json:"max_latency_ms"`
	AvgKafkaLag   float64 `json:"avg_kafka_lag"`
	MaxKafkaLag   float64 `json:"max_kafka_lag"`
	AvgErrorRate  float64 `json:"avg_error_rate"`
	SampleCount   int     `json:"sample_count"`
	DegradedCount int     `json:"degraded_count"`
	CriticalCount int     `json:"critical_count"`
}

// MetricSample is a single raw row from the metrics store, exposed by the
// recent-metrics endpoint for debugging and trend analysis.
type MetricSample struct {
	Timestamp   time.Time `json:"timestamp"`
	ServiceID   string    `json:"service_id"`
	LatencyMS   float64   `json:"latency_ms"`
	KafkaLag    int64     `json:"kafka_lag"`
	Status      string    `json:"status"`
	ErrorRate   float64   `json:"error_rate"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
}

// DetectionErrorKind classifies non-fatal detection outcomes.
type DetectionErrorKind string

const (
	DetectionErrorNone             DetectionErrorKind = ""
	DetectionErrorNoData           DetectionErrorKind = "NO_DATA"
	DetectionErrorTableNotFound    DetectionErrorKind = "TABLE_NOT_FOUND"
	DetectionErrorPermissionDenied DetectionErrorKind = "PERMISSION_DENIED"
	DetectionErrorQueryFailed      DetectionErrorKind = "QUERY_FAILED"
)

// DetectionResult is the full outcome of one anomaly-detection pass.
// Detection never raises: every failure mode is encoded here.
// Invariant: AnomalyDetected is true iff Violations is non-empty, and
// Metrics is nil iff no samples were found in the window.
type DetectionResult struct {
	Service         string             `json:"service"`
	AnomalyDetected bool               `json:"anomaly_detected"`
	Metrics         *MetricsSummary    `json:"metrics"`
	Violations      []string           `json:"violations"`
	Recommendation  string             `json:"recommendation"`
	QueryTime       time.Time          `json:"query_time"`
	WindowMinutes   int                `json:"time_window_minutes"`
	ErrorKind       DetectionErrorKind `json:"error,omitempty"`
}

// Confidence is the reasoner's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Action is a remediation verb. The canonical set is the four constants
// below; the reasoner may emit anything, so unknown verbs survive
// normalization and are rejected later by the healer.
type Action string

const (
	ActionScaleUp       Action = "scale_up"
	ActionRestart       Action = "restart"
	ActionMonitor       Action = "monitor"
	ActionEscalateHuman Action = "escalate_human"
	ActionNone          Action = "none"
)

// RiskAssessment is the structured output of the risk predictor. Prediction
// never raises either: a malformed or unreachable reasoner yields a
// well-formed assessment with Success=false or the deterministic fallback.
type RiskAssessment struct {
	Success           bool       `json:"success"`
	RiskScore         int        `json:"risk_score"`
	RootCause         string     `json:"root_cause"`
	RecommendedAction string     `json:"recommended_action"`
	Confidence        Confidence `json:"confidence"`
	Reasoning         string     `json:"reasoning"`
	Error             string     `json:"error,omitempty"`
}

// VerificationState reports the post-action check outcome.
type VerificationState string

const (
	VerificationNotApplicable VerificationState = "not_applicable"
	VerificationHealthy       VerificationState = "healthy"
	VerificationPending       VerificationState = "pending"
	VerificationFailed        VerificationState = "failed"
)

// InstanceBounds are the autoscaling limits applied by a scale action.
type InstanceBounds struct {
	MinInstances int `json:"min_instances"`
	MaxInstances int `json:"max_instances"`
}

// HealingResult records the outcome of one dispatched action.
type HealingResult struct {
	Success      bool              `json:"success"`
	Action       Action            `json:"action"`
	Verification VerificationState `json:"verification"`
	Scaling      *InstanceBounds   `json:"scaling,omitempty"`
	Message      string            `json:"message,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ReportSummary condenses an incident for dashboards and history queries.
type ReportSummary struct {
	AnomalyDetected bool   `json:"anomaly_detected"`
	RiskScore       int    `json:"risk_score"`
	ActionTaken     Action `json:"action_taken"`
	Success         bool   `json:"success"`
}

// IncidentReport is the immutable record of one completed heal run,
// successful or not. Created once, appended to history, never mutated.
type IncidentReport struct {
	IncidentID      string          `json:"incident_id"`
	Service         string          `json:"service"`
	AlertMessage    string          `json:"alert_message"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	DurationSeconds float64         `json:"duration_seconds"`
	Detection       DetectionResult `json:"detection"`
	Prediction      *RiskAssessment `json:"prediction,omitempty"`
	Healing         *HealingResult  `json:"healing,omitempty"`
	Summary         ReportSummary   `json:"summary"`
}
