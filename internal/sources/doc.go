// Package sources provides interfaces and implementations for bringing upstream
// package collections onto local disk.
//
// The package defines the SourceHandler interface which abstracts validating a
// source configuration and producing a local directory the scanner can walk.
//
// Current implementations:
//   - gitSourceHandler: keeps a working copy per source under the work dir,
//     refreshing it on every run
//   - fileSourceHandler: uses a local directory in place, for overrides and tests
//
// Handlers are created by a SourceHandlerFactory keyed by source type.
package sources
