// Package registry holds the in-memory view of the consolidated output tree.
//
// The output tree is its own state store: every top-level directory carrying a
// recipe is one package, and its identity is re-derived from that recipe on each
// run. Load builds the view once per run; the materializer mutates it as packages
// are written so later decisions in the same run see the current tree.
//
// # Keys and directories
//
// Entries are keyed by the lower-cased effective package name. One key may map to
// several physical directories, for example "Foo" and "foo-old" both declaring
// PKG_NAME:=foo. Set collapses the directories of a key back to the single
// canonical one after a successful write.
//
// # Provenance
//
// Each materialized package carries a ".sync_source" file naming the source
// collection, package, version and release it came from. The registry reads it
// back as informational Origin data; it never drives merge decisions.
package registry
