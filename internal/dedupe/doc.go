// Package dedupe tracks which keys were already handled within a window,
// so a polling loop does not act twice on the same log entry.
package dedupe
