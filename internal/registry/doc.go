// Package registry implements the liquidation-feed registry coordinator.
//
// The coordinator:
//   - Refreshes the vault set on every cycle and diffs it against the previous one
//   - Polls every due vault concurrently under one per-cycle timeout
//   - Merges fills into the dedup cache and updates per-vault health
//   - Publishes an immutable snapshot that readers load without locking
//   - Streams newly admitted trades to the trade channel
package registry
