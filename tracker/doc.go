// Package tracker contains the in-memory observers fed by the streaming
// dispatcher: the agent-delegation tree, the recipe pipeline tracker and the
// rolling tool-call log. Trackers are independent of the session core:
// they receive tool events, never raise, and render plain-text views for the
// frontends. All trackers are safe for concurrent use since the dispatcher
// updates them from engine worker goroutines while frontends read them.
package tracker
