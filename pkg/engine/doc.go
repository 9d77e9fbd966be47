// Package engine provides the cloud resource lifecycle orchestrator.
//
// # Overview
//
// A run walks a fixed sequence of phases:
//
//	init -> provisioning -> verifying -> operating -> reverifying -> tearing_down -> verified_torn_down
//
// Any provisioning or verification failure, or cancellation of the run context,
// moves the run to aborted after tearing down whatever was already created.
// Both verified_torn_down and aborted are final.
//
// # Components
//
//   - Registry: the ordered record of every Descriptor created during the run.
//     Insertion order is creation order. States only move forward, except to failed.
//   - Verifier: fixed-interval, bounded polling of Adapter.Describe until a resource
//     reports an expected State.
//   - TeardownCoordinator: reverse-order terminate and confirm of every registered
//     resource, continuing past individual failures.
//   - Orchestrator: sequences the phases, owns the Registry, and aggregates every
//     step into an OperationResult.
//
// # Adapters
//
// Provider calls go through the Adapter interface. The engine never assumes a
// provision or terminate succeeded without a confirming Describe.
//
// # Errors
//
// Per-resource failures are data: they become OperationResults carrying an
// *AdapterError or *VerificationTimeoutError. Only invariant violations
// (*DuplicateResourceError, *InvalidTransitionError) are returned from Run.
//
// # Example
//
//	orch := engine.NewOrchestrator(adapter, spec, engine.Options{
//	    Provider: "memory",
//	    Events:   publisher,
//	    Ledger:   store,
//	})
//	report, err := orch.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	os.Exit(report.ExitCode())
package engine
