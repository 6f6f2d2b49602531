// Package engine groups the concrete core.Engine implementations. Each
// subpackage adapts one provider SDK onto the raw streaming event taxonomy
// consumed by session handles.
package engine
