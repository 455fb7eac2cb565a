// Package log wraps zerolog with a process-global logger and helpers
// for component-scoped child loggers. Call Init once at startup, then
// either use the package helpers or take a child logger via
// WithComponent for structured per-subsystem output.
package log
