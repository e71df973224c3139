// Package hcs holds the shared vocabulary of the HCS-10 connection manager.
//
// # Identifiers
//
// Ledger topic and account ids use the shard.realm.number form. They may
// arrive as plain strings or as SDK value types; Canonicalize turns either
// into the canonical string and is the only place that happens.
//
// # Connections and Requests
//
// A Connection is keyed by its connection topic id and carries a single
// Status. IsPending and NeedsConfirmation are derived from that status, so
// contradictory combinations cannot be represented.
//
// A ConnectionRequest is an unconfirmed proposal. Incoming requests need
// local confirmation; outgoing requests wait on the counterparty.
//
// # Collaborators
//
// The packages above this one read and write topics only through the
// interfaces in channel.go: MessageReader, MessageSubmitter,
// PayloadResolver, ProfileResolver and ConnectionAccepter.
package hcs
