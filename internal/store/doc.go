// Package store provides SQLite-backed history of conformance runs.
//
// A run is one invocation of the test or overwrite command. It records:
//   - Runs: identity, compiler, platform and totals
//   - Scenario results: status and harness error per scenario
//   - Step results: argument vector, exit status, merged output and failures
//
// Run IDs are UUIDv7, so lexical order is creation order. Scenario and step
// rows carry an explicit seq; all queries order by it, never by timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
