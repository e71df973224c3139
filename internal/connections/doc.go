// Package connections keeps the connection and request state of one agent.
//
// # Registry
//
// Registry holds Connections keyed by canonical connection topic id:
//
//	reg := connections.NewRegistry(connections.RegistryOptions{
//	    Profiles:    channel,
//	    Checkpoints: checkpoints,
//	    Owner:       agent.AccountID,
//	})
//
// Add replaces the whole record for a topic and seeds a checkpoint at the
// current time the first time a topic is seen. List hides entries whose
// key is not a shard.realm.number topic id; those are placeholders for
// requests that do not have a connection topic yet. Resolve accepts a
// 1-based index into List, a topic id, or a counterparty account id, in
// that order.
//
// # Tracker
//
// Tracker holds ConnectionRequests not yet promoted. Reject is purely
// local bookkeeping through a RequestMarker; nothing is submitted to the
// ledger.
//
// # Syncer
//
// Syncer reads the agent's inbound and outbound topics and folds
// connection_request, connection_created and close_connection messages
// into the Registry and Tracker.
package connections
