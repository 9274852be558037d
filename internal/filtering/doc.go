// Package filtering selects which packages of a source take part in a merge.
//
// Each source may carry include and exclude glob patterns. Patterns are matched
// against the normalized package name, so "luci-app-*" also matches a directory
// declaring PKG_NAME:=LuCI-App-Foo. Exclude takes precedence over include:
//
//  1. If exclude patterns are specified and match -> exclude (precedence)
//  2. If include patterns are specified and match -> include
//  3. If include patterns are specified but no match -> exclude
//  4. If only exclude patterns are specified and no match -> include
//  5. If no patterns are specified -> include (default behavior)
//
// Patterns use gobwas/glob syntax: '*', '?', character classes '[...]' and
// alternatives '{a,b}'.
package filtering
