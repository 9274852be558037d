// Package git keeps local working copies of upstream source repositories.
//
// A working copy lives in a fixed directory per source. The first run clones it
// shallowly; later runs fetch the tracked branch and hard reset to it, falling
// back to a fresh clone whenever the refresh fails. Clones are retried with
// exponential backoff; missing repositories and rejected credentials are not
// retried.
package git
