// Package dedup implements the merge cache for liquidation fills.
//
// The cache:
//   - Admits a fill only the first time its trade id is seen, across vaults and cycles
//   - Attributes a fill seen on several vaults to the lowest vault address
//   - Keeps records newest first (timestamp desc, trade id asc)
//   - Evicts by age and, optionally, by count on every merge
//   - Rejects fills that already fall outside the retention window
package dedup
