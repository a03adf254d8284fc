// Package core provides the foundational domain types and contracts of
// slidesmith. It defines the core abstractions for:
//
//   - Sessions (bounded conversational containers with ordered transcripts,
//     TTL-based expiry and a derived lifecycle state)
//   - Presentations (the validated structured content model shared by the
//     backend's structured mode, session drafts and the renderer input)
//   - The SessionStore contract (atomic mutations, opportunistic expiry)
//   - The error taxonomy (transport / parse / validation / not-found /
//     state kinds with stable machine-readable codes)
//
// The package intentionally keeps implementation concerns (storage, model
// backends, turn orchestration) out of scope, exposing small interfaces so
// higher layers depend on contracts rather than concrete backends.
package core
