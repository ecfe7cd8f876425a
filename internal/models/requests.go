package models

// HealRequest is the body of POST /heal.
type HealRequest struct {
	Service      string `json:"service"`
	AlertMessage string `json:"alert_message"`
}

// HistoryResponse wraps a history query result.
type HistoryResponse struct {
	Count     int              `json:"count"`
	Incidents []IncidentReport `json:"incidents"`
}

// RecentMetricsResponse wraps the raw samples returned for one service.
type RecentMetricsResponse struct {
	Service string         `json:"service"`
	Count   int            `json:"count"`
	Metrics []MetricSample `json:"metrics"`
}

// ActionStats aggregates outcomes for one canonical action.
type ActionStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
}

// HistoryStats summarises the incident ring for post-incident review.
type HistoryStats struct {
	TotalIncidents int                    `json:"total_incidents"`
	Succeeded      int                    `json:"succeeded"`
	ByAction       map[Action]ActionStats `json:"by_action"`
	ByService      map[string]int         `json:"by_service"`
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status   string `json:"status"`
	Reasoner string `json:"reasoner"`
	Model    string `json:"model"`
}
