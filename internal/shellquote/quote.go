// Package shellquote escapes text for rendering inside single-quoted shell
// words. It is only used when reporting would-be commands; real execution
// passes argument vectors and never goes through a shell.
package shellquote

import "strings"

// Quote escapes embedded single quotes so s can appear inside a
// single-quoted shell word without terminating it.
func Quote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

// Single returns s wrapped in single quotes with embedded quotes escaped.
func Single(s string) string {
	return "'" + Quote(s) + "'"
}
