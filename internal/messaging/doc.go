// ABOUTME: Package messaging sends and reads messages on established connection topics
// ABOUTME: Reply correlation is by sequence number and operator id, not by message id

// Package messaging implements the message correlator: sending an HCS-10
// "message" operation, waiting for a reply from the counterparty, and
// reading unread messages using per-topic checkpoints.
package messaging
