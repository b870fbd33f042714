// Package operations orchestrates the research pipeline as a set of
// dependency-ordered steps.
//
// A Step is a single unit of work that reads the datasets earlier steps
// wrote and publishes its own. Steps declare their prerequisites by ID;
// the Registry topologically sorts them and the Manager executes them in
// that order, honouring context cancellation and per-step timeouts.
//
// Each step moves through a small state machine (pending, running,
// completed, failed, skipped) tracked by StepState. The StatusBroadcaster
// folds those transitions into OperationSnapshot values and pushes them
// through a WebSocketHub so clients can follow a run in real time.
//
// Typical wiring:
//
//	registry := operations.NewRegistry()
//	if err := operations.RegisterResearchSteps(registry, cfg, paths, logger, opts); err != nil {
//		return err
//	}
//	manager := operations.NewManager(hub, registry, operations.NewConfig(), metrics, logger)
//	resp, err := manager.Execute(ctx, &operations.OperationRequest{})
package operations
