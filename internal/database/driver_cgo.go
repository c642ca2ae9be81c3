//go:build sqlite_cgo

package database

import (
	_ "github.com/mattn/go-sqlite3" // build with -tags "sqlite_cgo sqlite_fts5"
)

// DriverName is the database/sql driver in use.
const DriverName = "sqlite3"

func dsn(path string, busyTimeoutMs int) string {
	if path == MemoryPath {
		return ":memory:"
	}
	return "file:" + path + "?_busy_timeout=" + itoa(busyTimeoutMs) +
		"&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"
}
