// Package model defines the decision capability boundary of agency: given an
// agent's instructions, ordered history and the tool schemas it may use, a
// Model decides either on a final text or on one or more tool calls.
//
// Core goals:
//   - Keep the decision contract request/response shaped and transport independent
//   - Normalize tool definitions and tool calls across vendors
//   - Provide deterministic stand-ins (ScriptedModel, Func) for tests
//
// Providers (Anthropic, OpenAI) live in sub-packages and implement Model so
// agents and the orchestrator stay decoupled from vendor SDKs.
package model
