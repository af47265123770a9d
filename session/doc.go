// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package so
// higher level packages never depend on a concrete storage backend; only the
// wiring layer decides which implementation to instantiate.
//
// InMemoryStore suits tests and one-shot CLI runs. BoltStore persists
// sessions in a single bbolt file, one JSON document per session.
package session
