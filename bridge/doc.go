// Package bridge carries sink calls from engine worker goroutines onto a
// frontend's own execution context. Workers never touch UI state directly:
// every update crosses exactly one hop, a Poster that schedules a closure on
// the frontend loop. The handoff is bounded and non-blocking; when the
// frontend cannot keep up, frames are dropped and logged rather than
// stalling the engine.
package bridge
