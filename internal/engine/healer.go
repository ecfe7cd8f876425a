package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigilstack/vigil-healer/internal/infra"
	"github.com/vigilstack/vigil-healer/internal/models"
)

// Controller defines the infrastructure operations used by the healer.
type Controller interface {
	Scale(ctx context.Context, service string, minInstances, maxInstances int) error
	Restart(ctx context.Context, service string) error
	Describe(ctx context.Context, service string) (infra.ServiceStatus, error)
}

// Healer dispatches a canonical action against the infrastructure
// controller. A failed controller call is surfaced, never retried;
// retry-with-backoff belongs to whoever triggered the heal.
type Healer struct {
	controller Controller
	verifyWait time.Duration
	logger     *slog.Logger
}

// NewHealer constructs a Healer. verifyWait is the grace period between a
// successful scale call and its verification describe.
func NewHealer(controller Controller, verifyWait time.Duration, logger *slog.Logger) *Healer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Healer{controller: controller, verifyWait: verifyWait, logger: logger}
}

// Heal executes one action. Every outcome, including an unknown action,
// comes back as a HealingResult; callers can branch on Success alone.
func (h *Healer) Heal(ctx context.Context, service string, action models.Action, riskScore int) models.HealingResult {
	switch action {
	case models.ActionScaleUp:
		return h.scaleUp(ctx, service, riskScore)
	case models.ActionRestart:
		return h.restart(ctx, service)
	case models.ActionMonitor:
		return models.HealingResult{
			Success:      true,
			Action:       action,
			Verification: models.VerificationNotApplicable,
			Message:      fmt.Sprintf("No immediate action required. Monitoring %s.", service),
		}
	case models.ActionEscalateHuman:
		// Stands in for a paging integration; the incident report is the
		// durable signal until one exists.
		h.logger.Warn("escalating to on-call", slog.String("service", service), slog.Int("risk_score", riskScore))
		return models.HealingResult{
			Success:      true,
			Action:       action,
			Verification: models.VerificationNotApplicable,
			Message:      fmt.Sprintf("Alert sent to on-call for %s", service),
		}
	default:
		return models.HealingResult{
			Success:      false,
			Action:       action,
			Verification: models.VerificationNotApplicable,
			Error:        fmt.Sprintf("unknown action: %s", action),
		}
	}
}

// boundsForRisk picks autoscaling limits by risk tier.
func boundsForRisk(riskScore int) models.InstanceBounds {
	switch {
	case riskScore >= 80:
		return models.InstanceBounds{MinInstances: 5, MaxInstances: 20}
	case riskScore >= 50:
		return models.InstanceBounds{MinInstances: 3, MaxInstances: 15}
	default:
		return models.InstanceBounds{MinInstances: 2, MaxInstances: 10}
	}
}

func (h *Healer) scaleUp(ctx context.Context, service string, riskScore int) models.HealingResult {
	bounds := boundsForRisk(riskScore)

	if err := h.controller.Scale(ctx, service, bounds.MinInstances, bounds.MaxInstances); err != nil {
		return models.HealingResult{
			Success:      false,
			Action:       models.ActionScaleUp,
			Verification: models.VerificationNotApplicable,
			Scaling:      &bounds,
			Error:        err.Error(),
		}
	}

	result := models.HealingResult{
		Success: true,
		Action:  models.ActionScaleUp,
		Scaling: &bounds,
		Message: fmt.Sprintf("Successfully scaled %s to min=%d, max=%d", service, bounds.MinInstances, bounds.MaxInstances),
	}

	// Give the platform time to bring instances up before the single
	// verification check. Pending is a terminal state for this run, not a
	// failure; there is no poll loop here.
	select {
	case <-time.After(h.verifyWait):
	case <-ctx.Done():
		result.Verification = models.VerificationPending
		return result
	}

	status, err := h.controller.Describe(ctx, service)
	if err == nil && status.Ready {
		result.Verification = models.VerificationHealthy
	} else {
		if err != nil {
			h.logger.Warn("post-scale verification failed", slog.String("service", service), slog.Any("error", err))
		}
		result.Verification = models.VerificationPending
	}
	return result
}

func (h *Healer) restart(ctx context.Context, service string) models.HealingResult {
	if err := h.controller.Restart(ctx, service); err != nil {
		return models.HealingResult{
			Success:      false,
			Action:       models.ActionRestart,
			Verification: models.VerificationNotApplicable,
			Error:        err.Error(),
		}
	}
	return models.HealingResult{
		Success:      true,
		Action:       models.ActionRestart,
		Verification: models.VerificationNotApplicable,
		Message:      fmt.Sprintf("Successfully restarted %s by deploying new revision", service),
	}
}
