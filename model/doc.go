// Package model defines the backend-agnostic abstractions for driving text
// generation inside slidesmith.
//
// Core goals:
//   - Unify streaming + structured generation behind a single interface
//   - Keep request/fragment shapes minimal and transport independent
//   - Bound shared backend concurrency (Inflight)
//   - Facilitate deterministic testing (ScriptedBackend)
//
// Providers (e.g. Ollama) implement the Backend interface from this package
// so higher layers (coordinator, assembler, engine) remain decoupled from
// concrete wire protocols.
package model
