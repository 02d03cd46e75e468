package db

import "sync"

// WriteMutex is a process-wide lock for serializing SQLite writes
// (INSERT/UPDATE/DELETE); SQLite permits exactly one writer at a time even
// under WAL. No repository in this module takes it.
var WriteMutex sync.Mutex
