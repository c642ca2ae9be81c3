//go:build !sqlite_cgo

package database

import (
	"net/url"

	_ "modernc.org/sqlite" // pure Go driver, FTS5 built in
)

// DriverName is the database/sql driver in use.
const DriverName = "sqlite"

func dsn(path string, busyTimeoutMs int) string {
	if path == MemoryPath {
		return ":memory:"
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+itoa(busyTimeoutMs)+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}
