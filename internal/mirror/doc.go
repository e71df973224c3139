// ABOUTME: Package mirror reads HCS topics and agent profiles from a mirror node
// ABOUTME: Calls go through a rate limiter and a circuit breaker

// Package mirror is the read side of the ledger channel. It implements
// hcs.MessageReader, hcs.PayloadResolver and hcs.ProfileResolver against
// the Hedera mirror node REST API and an inscription CDN for hcs://
// pointers.
package mirror
