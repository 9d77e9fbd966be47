// Package stores persists cloudcycle run history in SQLite.
//
// The ledger records one row per run, the last known state of every resource
// the run created (failed ones included), each operation result in execution
// order, and the lifecycle event stream. SQLiteStore implements engine.Ledger
// so an orchestrator can write to it directly, and EventSubscriber plugs it
// into a telemetry.EventPublisher. The schema is applied with embedded
// golang-migrate migrations.
package stores
