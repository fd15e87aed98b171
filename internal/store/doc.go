// Package store provides the two SQLite-backed local stores of the runner:
//
//   - MetaStore: a read-only snapshot of instance metadata (metadata.db,
//     table Instance), replaced wholesale by atomic rename when a new dump
//     is pulled from the server.
//   - InstanceCache: a growing cache of instance bodies (instances.db,
//     table InstanceBody), merged additively; bodies are immutable so
//     INSERT OR IGNORE union is always correct.
//
// The asymmetry is deliberate: metadata is authoritative per dump and
// swapped, bodies never change and are unioned.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during cold-path inserts
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - MetaStore opens read-only; a failing PRAGMA integrity_check at open
//     is surfaced as a CorruptStoreError with the remedy to re-update
package store
