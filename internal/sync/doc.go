// Package sync runs one synchronization pass over the configured sources.
//
// A run takes an exclusive lock on the work directory, fetches every source
// (optionally in parallel), scans each snapshot for package directories, resolves
// duplicate packages with the configured merge strategy and materializes the
// winners into the output tree. Sources that fail to fetch are skipped and
// packages that fail to copy are counted, neither aborts the run.
//
// # Result Types
//
//   - Result: counts per outcome, the decisions, and the failed sources and packages
//   - Error: structured error with condition information, returned when the run aborts
//
// The run status is persisted as status.json in the work directory unless the
// manager runs in dry-run mode.
package sync
