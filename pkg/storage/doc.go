// Package storage persists the doghair pull ledger in BoltDB.
//
// The ledger is bookkeeping, not a command queue: it records each pull
// cycle (repository path, expected and transferred counts) and a receipt
// per fully received file, so operators can audit what a repository
// should contain after partial failures.
package storage
