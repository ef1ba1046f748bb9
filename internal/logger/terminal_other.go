//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !windows

package logger

// isTerminal disables color where terminal detection is not implemented.
func isTerminal(uintptr) bool { return false }
