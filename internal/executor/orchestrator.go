package executor

import (
	"context"
	"strings"
	"time"

	"github.com/stewardhq/steward/internal/models"
	"github.com/stewardhq/steward/internal/provider"
	"github.com/stewardhq/steward/internal/recovery"
)

// ProviderRouter resolves fallback providers for failed invocations.
// Satisfied by provider.Registry.
type ProviderRouter interface {
	IsAvailable(id string) bool
	GetFallbackProvider(primaryID string, providers map[string]models.ProviderConfig, taskFallbackID string) *models.Fallback
}

// Request identifies one tool invocation to orchestrate.
type Request struct {
	ToolID  string
	AgentID string
	TaskID  string
	// Provider is the primary provider backing the tool, consulted for
	// fallback routing on provider-shaped failures.
	Provider string
	// TaskFallback optionally names a task-level fallback provider.
	TaskFallback string
	Input        interface{}
	Metadata     map[string]interface{}
}

// Response reports how an orchestrated invocation ended.
type Response struct {
	Success     bool
	Output      interface{}
	Err         error
	ExecutionID string
	// Fallback is set when the failure should be retried on another
	// provider; the caller owns re-dispatching.
	Fallback *models.Fallback
	// ManualIntervention is set when recovery was exhausted or the
	// failure class is not automatically recoverable.
	ManualIntervention bool
}

// Orchestrator drives tool invocations through the state machine with
// classified-failure recovery: retry in place with backoff, fallback
// provider routing, or a structured manual-intervention failure.
type Orchestrator struct {
	machine   *Machine
	selector  *recovery.Selector
	providers ProviderRouter
	// providerConfigs is the static provider map used for fallback
	// resolution.
	providerConfigs map[string]models.ProviderConfig
	logger          Logger
}

// NewOrchestrator wires the execution machinery together. providers
// and logger may be nil; without a router, fallback selections degrade
// to manual intervention.
func NewOrchestrator(machine *Machine, selector *recovery.Selector, providers ProviderRouter, providerConfigs map[string]models.ProviderConfig, logger Logger) *Orchestrator {
	return &Orchestrator{
		machine:         machine,
		selector:        selector,
		providers:       providers,
		providerConfigs: providerConfigs,
		logger:          logger,
	}
}

// Run executes one tool invocation with recovery. The loop classifies
// each failure, asks the selector for a strategy, and acts on it:
// retry re-invokes after the backoff sleep, fallback resolves a
// replacement provider and returns to the caller, everything else
// terminates into a gave-up completion.
func (o *Orchestrator) Run(ctx context.Context, req Request, fn ToolFunc) Response {
	exec := o.machine.Create(req.ToolID, req.AgentID, req.Metadata)
	o.machine.Start(exec.ID, req.Input)

	fc := recovery.FailureContext{TaskID: req.TaskID, AgentID: req.AgentID}

	for {
		output, err := fn(ctx, req.Input)
		if err == nil {
			o.machine.Complete(exec.ID, output)
			return Response{Success: true, Output: output, ExecutionID: exec.ID}
		}

		o.machine.Error(exec.ID, models.ExecError{
			Message: err.Error(),
			Code:    errorCode(err),
		})

		analysis := recovery.Analyze(recovery.ClassifyInput{
			Message: err.Error(),
			Code:    errorCode(err),
		})
		sel := o.selector.Select(analysis, fc)

		if o.logger != nil {
			o.logger.Debugf("execution %s failed (%s), strategy %s attempt %d/%d",
				exec.ID, analysis.Category, sel.Strategy, sel.AttemptNumber+1, sel.MaxAttempts)
		}

		_, execErr := o.selector.Execute(ctx, sel, fc)
		if execErr != nil {
			// Context cancelled mid-backoff; surface as a failure.
			o.machine.Complete(exec.ID, nil)
			return Response{Success: false, Err: execErr, ExecutionID: exec.ID}
		}

		switch sel.Strategy {
		case models.StrategyRetry:
			if o.machine.Recover(exec.ID, sel.Strategy) != nil {
				continue
			}
			// Per-execution recoveries exhausted.
			o.machine.Complete(exec.ID, nil)
			return Response{Success: false, Err: err, ExecutionID: exec.ID, ManualIntervention: true}

		case models.StrategyFallback:
			fallback := o.resolveFallback(req)
			o.machine.Complete(exec.ID, nil)
			if fallback == nil {
				return Response{Success: false, Err: err, ExecutionID: exec.ID, ManualIntervention: true}
			}
			return Response{Success: false, Err: err, ExecutionID: exec.ID, Fallback: fallback}

		default:
			o.machine.Complete(exec.ID, nil)
			return Response{
				Success:            false,
				Err:                err,
				ExecutionID:        exec.ID,
				ManualIntervention: sel.Strategy == models.StrategyManual || !analysis.Recoverable,
			}
		}
	}
}

// resolveFallback asks the router for a replacement provider.
func (o *Orchestrator) resolveFallback(req Request) *models.Fallback {
	if o.providers == nil || req.Provider == "" {
		return nil
	}
	return o.providers.GetFallbackProvider(req.Provider, o.providerConfigs, req.TaskFallback)
}

// ReportProviderFailure marks provider state from a classified failure
// so subsequent routing avoids the unavailable backend. Usage limits
// carry the provider's own wait estimate when the error message
// includes one.
func ReportProviderFailure(registry *provider.Registry, providerID string, analysis *models.ErrorAnalysis) error {
	if registry == nil || providerID == "" || analysis == nil {
		return nil
	}
	if analysis.Category != models.CategoryRateLimit {
		return nil
	}
	message := strings.ToLower(analysis.Message)
	if strings.Contains(message, "usage limit") || strings.Contains(message, "quota") {
		return registry.MarkUsageLimit(providerID, provider.UsageLimit{Message: analysis.Message})
	}
	return registry.MarkRateLimited(providerID)
}

// WaitForRecovery blocks until the context ends or the provider is
// available again, polling at the given interval.
func WaitForRecovery(ctx context.Context, router ProviderRouter, providerID string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if router.IsAvailable(providerID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
