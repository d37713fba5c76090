// Package store provides SQLite-backed durable storage for compiled
// query whitelists.
//
// The store persists, per compile run:
//   - Whitelist entries: normalized query text, parameter schema,
//     validators, and referenced call sites
//   - Fragment allowances: which fingerprints a parent query may accept
//     as merged fragments at runtime
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
