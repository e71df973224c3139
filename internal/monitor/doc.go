// ABOUTME: Package monitor watches an agent's inbound topic for connection requests
// ABOUTME: Requests matching the accept policy are promoted to established connections

// Package monitor runs the deadline-bounded polling loop that accepts
// inbound connection requests. Processed request sequence numbers are
// remembered for the run and, when a persistent marker is configured,
// across runs keyed by the inbound topic.
package monitor
