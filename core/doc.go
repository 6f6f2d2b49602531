// Package core provides the foundational domain types and interfaces shared
// by every frontend of the parley chat client. It defines the core
// abstractions for:
//
//   - Engines (external agent-execution backends that run turns and emit
//     raw streaming events)
//   - The raw event taxonomy consumed from an engine and the EventData
//     payload helpers used to decode it
//   - Sinks (the streaming/display contract a frontend implements to
//     receive dispatched output)
//
// The package intentionally keeps implementation concerns (session registry,
// throttling, concrete engine bridges, UI toolkits) out of scope, exposing
// small interfaces so frontends and backends can be swapped independently.
package core
