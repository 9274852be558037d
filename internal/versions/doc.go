// Package versions orders upstream package version strings and reports build
// information for the feedsync binary.
//
// Upstream recipes use anything from strict semantic versions to dates,
// "git-YYYYMMDD" pseudo-versions and unexpanded make macros. Compare handles all
// of them with a total order so conflict resolution can never fail on a version
// string.
package versions
