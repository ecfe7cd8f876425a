package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Response  string    `json:"response"`
	Done      bool      `json:"done"`
}

// Canned assessments keyed on prompt content so local runs can exercise
// both healing branches without a real model.
const (
	criticalAssessment = `{"risk_score": 90, "root_cause": "Connection pool exhaustion under sustained load", "recommended_action": "scale_up", "confidence": "high", "reasoning": "Latency and error rate both breach thresholds; capacity is the limiting factor."}`
	nominalAssessment  = `{"risk_score": 20, "root_cause": "No significant degradation observed", "recommended_action": "monitor", "confidence": "medium", "reasoning": "Metrics are elevated but within tolerances."}`
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		assessment := nominalAssessment
		if strings.Contains(req.Prompt, "CRITICAL") {
			assessment = criticalAssessment
		}

		writeJSON(w, generateResponse{
			Model:     req.Model,
			CreatedAt: time.Now().UTC(),
			Response:  assessment,
			Done:      true,
		})
	})

	logger := log.New(log.Writer(), "reasoner-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":11434",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :11434")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
