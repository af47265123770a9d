// Package core provides the shared domain types of the agency orchestrator:
//
//   - Messages, tool calls and tool results making up agent histories
//   - Handoff requests and the registry's handoff verdicts
//   - Branch results, transcripts and the FinalResult surface
//   - ToolContext (per-registry auxiliary state) and the shared WriteLock
//   - Sessions grouping the results of successive requests
//
// Concrete agents, registries and the routing state machine live in their
// own packages and depend on core, never the other way round.
package core
