// Package dispatch connects a session handle's translated callbacks to a
// display sink and the trackers. The dispatcher owns the per-turn streaming
// state: it accumulates delta text, throttles forwarded snapshots, and fans
// tool events out to the tool log, the agent tracker and the recipe tracker.
// Every sink call and tracker update is isolated, so a panic in one consumer
// never suppresses the others or kills the engine worker goroutine.
package dispatch
