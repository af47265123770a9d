// Package logging provides a minimal logging interface and adapters for agency.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn,
// Error) that agents, registries and the orchestrator use for observability.
// Messages are dotted event names ("agent.turn.start") followed by key/value
// pairs. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and AgencyLogger built on log/slog
//   - ZapAdapter wrapping a zap SugaredLogger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch, err := orchestrator.New(entry, roster, func(o *orchestrator.Options) { o.Logger = logger })
package logging
