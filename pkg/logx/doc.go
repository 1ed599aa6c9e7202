// Package logx wraps zerolog behind a small structured-logging API whose
// sinks (console, file) and level can be swapped at runtime via Service.Apply.
package logx
