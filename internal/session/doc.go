// ABOUTME: Package session binds connection state to one agent identity
// ABOUTME: Switching identity means constructing a new Session

// Package session owns the per-identity state: the checkpoint store,
// connection registry, request tracker and message correlator of one
// registered agent. Manager keeps a "current agent" for callers that
// work with a single identity at a time.
package session
