// Package agent implements the decision loop of a single agent.
//
// An Agent owns a name, a conversation history, a decision capability
// (model.Model) and a tool.Registry. Process runs one turn:
//
//  1. ask the model for an action given the history and tool schemas
//  2. a final action ends the turn with its text as the response
//  3. tool calls are executed in order through the registry
//  4. a scheduled handoff ends the turn immediately and is returned to the
//     caller; a blocked handoff is recorded as an error result and the
//     loop continues
//
// Every turn is bounded by a tool-call budget. Exceeding it yields
// core.ErrTurnLimitExceeded together with the partial Outcome.
//
// Agents never route control themselves; the orchestrator package consumes
// the handoff found in an Outcome.
package agent
