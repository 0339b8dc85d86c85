package executor

import (
	"fmt"

	"github.com/stewardhq/steward/internal/bus"
	"github.com/stewardhq/steward/internal/config"
	"github.com/stewardhq/steward/internal/history"
	"github.com/stewardhq/steward/internal/provider"
	"github.com/stewardhq/steward/internal/recovery"
)

// Stack is the fully wired orchestration runtime built from
// configuration: the state machine, the recovery selector with its
// ledger, the provider registry, the optional durable history archive,
// and the orchestrator tying them together.
type Stack struct {
	Machine      *Machine
	Selector     *recovery.Selector
	Registry     *provider.Registry
	History      *history.Store
	Orchestrator *Orchestrator
}

// NewStack builds the standard component wiring from configuration.
// Recovery tuning (max attempts, backoff cap) is applied to the
// selector; when the history archive is enabled, both completed
// executions and executed recovery attempts are recorded in it. events
// and log may be nil. The caller owns Close.
func NewStack(cfg *config.Config, events *bus.Bus, log Logger) (*Stack, error) {
	var store *history.Store
	if cfg.History.Enabled {
		var err error
		store, err = history.NewStore(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open history archive: %w", err)
		}
	}

	selector := recovery.NewSelector(recovery.NewLedger(), events, log)
	selector.SetMaxAttempts(cfg.Recovery.MaxAttempts)
	selector.SetBackoffCap(cfg.Recovery.BackoffCapMs)

	var machine *Machine
	if store != nil {
		selector.SetArchiver(store)
		machine = NewMachine(events, log, store)
	} else {
		machine = NewMachine(events, log, nil)
	}

	registry := provider.NewRegistry(cfg.ProviderSnapshot, events, log)

	return &Stack{
		Machine:      machine,
		Selector:     selector,
		Registry:     registry,
		History:      store,
		Orchestrator: NewOrchestrator(machine, selector, registry, cfg.Providers, log),
	}, nil
}

// Close releases the stack's resources.
func (s *Stack) Close() error {
	if s.History != nil {
		return s.History.Close()
	}
	return nil
}
