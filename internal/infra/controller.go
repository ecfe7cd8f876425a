package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/vigilstack/vigil-healer/internal/config"
	"github.com/vigilstack/vigil-healer/internal/utils"
)

// ServiceStatus captures the fields we read back from a describe call.
type ServiceStatus struct {
	URL            string `json:"url"`
	Ready          bool   `json:"ready"`
	LatestRevision string `json:"latest_revision"`
	MinInstances   string `json:"min_instances"`
	MaxInstances   string `json:"max_instances"`
}

// CLIController drives the infrastructure CLI (gcloud by default) as an
// external process. Every invocation is bounded by a per-operation timeout;
// nothing is retried here — retry policy belongs to the caller.
type CLIController struct {
	cfg    config.ControllerConfig
	logger *slog.Logger
}

// NewCLIController builds a controller from configuration.
func NewCLIController(cfg config.ControllerConfig, logger *slog.Logger) *CLIController {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "gcloud"
	}
	if cfg.ScaleTimeout <= 0 {
		cfg.ScaleTimeout = 60 * time.Second
	}
	if cfg.RestartTimeout <= 0 {
		cfg.RestartTimeout = 60 * time.Second
	}
	if cfg.DescribeTimeout <= 0 {
		cfg.DescribeTimeout = 30 * time.Second
	}
	return &CLIController{cfg: cfg, logger: logger}
}

// Scale updates the autoscaling bounds of a service.
func (c *CLIController) Scale(ctx context.Context, service string, minInstances, maxInstances int) error {
	args := c.withCommonArgs([]string{
		"run", "services", "update", service,
		"--min-instances", strconv.Itoa(minInstances),
		"--max-instances", strconv.Itoa(maxInstances),
	}, true)

	_, err := c.run(ctx, c.cfg.ScaleTimeout, args)
	if err != nil {
		return utils.NewAppError("controller.scale", fmt.Sprintf("scale %s", service), err)
	}
	c.logger.Info("service scaled",
		slog.String("service", service),
		slog.Int("min_instances", minInstances),
		slog.Int("max_instances", maxInstances))
	return nil
}

// Restart forces a new revision by touching a label, which redeploys the
// service without changing its code or configuration.
func (c *CLIController) Restart(ctx context.Context, service string) error {
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	args := c.withCommonArgs([]string{
		"run", "services", "update", service,
		"--update-labels", "restart-timestamp=" + stamp,
	}, true)

	_, err := c.run(ctx, c.cfg.RestartTimeout, args)
	if err != nil {
		return utils.NewAppError("controller.restart", fmt.Sprintf("restart %s", service), err)
	}
	c.logger.Info("service restarted", slog.String("service", service))
	return nil
}

// describePayload mirrors the subset of the CLI's JSON output we consume.
type describePayload struct {
	Status struct {
		URL        string `json:"url"`
		Conditions []struct {
			Status string `json:"status"`
		} `json:"conditions"`
		LatestReadyRevisionName string `json:"latestReadyRevisionName"`
	} `json:"status"`
	Spec struct {
		Template struct {
			Metadata struct {
				Annotations map[string]string `json:"annotations"`
			} `json:"metadata"`
		} `json:"template"`
	} `json:"spec"`
}

// Describe reports the current state of a service.
func (c *CLIController) Describe(ctx context.Context, service string) (ServiceStatus, error) {
	args := c.withCommonArgs([]string{"run", "services", "describe", service}, false)

	stdout, err := c.run(ctx, c.cfg.DescribeTimeout, args)
	if err != nil {
		return ServiceStatus{}, utils.NewAppError("controller.describe", fmt.Sprintf("describe %s", service), err)
	}

	var payload describePayload
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		return ServiceStatus{}, utils.NewAppError("controller.describe", "parse describe output", err)
	}

	status := ServiceStatus{
		URL:            payload.Status.URL,
		LatestRevision: payload.Status.LatestReadyRevisionName,
		MinInstances:   payload.Spec.Template.Metadata.Annotations["autoscaling.knative.dev/minScale"],
		MaxInstances:   payload.Spec.Template.Metadata.Annotations["autoscaling.knative.dev/maxScale"],
	}
	if len(payload.Status.Conditions) > 0 {
		status.Ready = payload.Status.Conditions[0].Status == "True"
	}
	return status, nil
}

func (c *CLIController) withCommonArgs(args []string, quiet bool) []string {
	if c.cfg.Region != "" {
		args = append(args, "--region", c.cfg.Region)
	}
	if c.cfg.Project != "" {
		args = append(args, "--project", c.cfg.Project)
	}
	args = append(args, "--format", "json")
	if quiet {
		args = append(args, "--quiet")
	}
	return args
}

// run executes one CLI invocation. The three failure modes callers care
// about get distinct messages: timeout, missing binary, non-zero exit.
func (c *CLIController) run(ctx context.Context, timeout time.Duration, args []string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, c.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s command timed out after %s", c.cfg.Binary, timeout)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", fmt.Errorf("%s CLI not found in PATH", c.cfg.Binary)
	}

	diag := strings.TrimSpace(stderr.String())
	if diag == "" {
		diag = strings.TrimSpace(stdout.String())
	}
	if diag == "" {
		diag = err.Error()
	}
	return "", fmt.Errorf("%s exited with error: %s", c.cfg.Binary, diag)
}
