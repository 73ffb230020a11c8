// Package store provides the on-device key-value persistence used by the
// identity engine.
//
// Values are strings stored under a (datastore, key) pair. Two backends
// implement [Store]:
//
//   - [SQLiteStore]: the default. One table, WAL mode, embedded schema with
//     PRAGMA user_version migrations.
//   - [BadgerStore]: BadgerDB, on disk or fully in memory.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Every write stamps the row with a monotonically increasing seq so that
// List can report entries in write order.
package store
