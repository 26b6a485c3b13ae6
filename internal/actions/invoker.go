package actions

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/boblightd/internal/ledger"
)

// Request is one action invocation.
type Request struct {
	Action string
	Target Target
	Args   map[string]any
	// Source names the caller ("api", "lua", ...). Recorded in the ledger.
	Source string
	// IdempotencyKey suppresses re-execution once an action with the same
	// key has completed. Empty means no dedupe.
	IdempotencyKey string
}

// Invoker executes registered actions and records each outcome in the ledger.
type Invoker struct {
	registry *Registry
	ledger   *ledger.Ledger
}

// NewInvoker creates a new action invoker. The ledger may be nil.
func NewInvoker(registry *Registry, l *ledger.Ledger) *Invoker {
	return &Invoker{
		registry: registry,
		ledger:   l,
	}
}

// HasAction checks if an action is registered
func (i *Invoker) HasAction(actionName string) bool {
	_, exists := i.registry.Get(actionName)
	return exists
}

// Registry returns the action registry.
func (i *Invoker) Registry() *Registry {
	return i.registry
}

// Invoke runs req.Action against req.Target.
func (i *Invoker) Invoke(ctx context.Context, req Request) error {
	if req.IdempotencyKey != "" && i.ledger != nil && i.ledger.HasCompleted(req.IdempotencyKey) {
		log.Debug().
			Str("action", req.Action).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("Action already completed, skipping")
		return nil
	}

	action, exists := i.registry.Get(req.Action)
	if !exists {
		return fmt.Errorf("%w: %q", ErrActionNotFound, req.Action)
	}

	logEvent := log.Debug().
		Str("action", req.Action).
		Str("device", req.Target.DeviceID).
		Int("channel", req.Target.Channel).
		Interface("args", req.Args)
	if req.Source != "" {
		logEvent = logEvent.Str("source", req.Source)
	}
	logEvent.Msg("Executing action")

	err := action.Execute(NewContext(ctx, req.Target), req.Args)

	if err != nil {
		i.record(ledger.EventActionFailed, req, map[string]any{
			"action": req.Action,
			"args":   req.Args,
			"error":  err.Error(),
		})
		return err
	}

	i.record(ledger.EventActionCompleted, req, map[string]any{
		"action": req.Action,
		"args":   req.Args,
	})
	return nil
}

// Reject records a request that failed before it reached an action, such
// as one addressed to an unknown device, and returns err.
func (i *Invoker) Reject(req Request, err error) error {
	log.Debug().Err(err).Str("action", req.Action).Str("device", req.Target.DeviceID).Msg("Action rejected")
	i.record(ledger.EventActionFailed, req, map[string]any{
		"action": req.Action,
		"args":   req.Args,
		"error":  err.Error(),
	})
	return err
}

func (i *Invoker) record(eventType ledger.EventType, req Request, payload map[string]any) {
	if i.ledger == nil {
		return
	}
	err := i.ledger.Append(ledger.Record{
		EventType:      eventType,
		DeviceID:       req.Target.DeviceID,
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Payload:        payload,
	})
	if err != nil {
		log.Error().Err(err).Str("action", req.Action).Msg("Failed to record action in ledger")
	}
}
