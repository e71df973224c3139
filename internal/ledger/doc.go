// ABOUTME: Package ledger writes HCS-10 messages and connection topics to Hedera
// ABOUTME: Wraps the Hedera Go SDK behind a small backend seam for tests

// Package ledger is the write side of the ledger channel. Writer
// implements hcs.MessageSubmitter and hcs.ConnectionAccepter using the
// Hedera Go SDK. SDK calls are synchronous and do not take a context, so
// cancellation is only checked before a transaction is sent.
package ledger
