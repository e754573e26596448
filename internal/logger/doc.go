// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a sane console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, WarnKV, etc.).
//
// The pipeline accepts a context everywhere and extracts the logger from it,
// enabling scoped, structured logging throughout the codebase.
package logger
