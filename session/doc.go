// Package session owns the per-conversation state bags (Handle) and the
// registry that maps conversation IDs to them. The registry drives the
// session lifecycle against an external engine (create, resume, end) and
// forwards outbound messages; the handle translates the engine's raw
// streaming events into typed callback invocations.
//
// Isolation is the load-bearing invariant here: every handle carries its own
// engine session, callback slots and token counters, and the engine's stream
// function is bound to exactly one handle at creation time. Events for
// conversation A can therefore never invoke conversation B's callbacks or
// mutate its counters.
package session
