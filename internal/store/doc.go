// Package store persists agent identities and per-agent connection state.
//
// # Architecture
//
// Store is the union of the persistence interfaces consumed elsewhere:
//
//   - checkpoint.Persister: per-topic read cursors
//   - connections.ConnectionStore: known connections and request placeholders
//   - connections.ProcessedStore: requests handled locally
//   - AgentStore: registered agent identities
//
// SQLiteStore implements all of them in one struct. Every row except the
// agents themselves is partitioned by owner, the agent's account id, so
// several identities can share one database without seeing each other's
// state.
//
// # Private keys
//
// Agent private keys are sealed with XChaCha20-Poly1305 under a key derived
// by HKDF-SHA256 from a configured secret. Without a secret, keys are not
// written at all.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore on a path under
// t.TempDir() for integration tests.
package store
