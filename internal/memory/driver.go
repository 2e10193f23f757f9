//go:build !(sqlite_vec && cgo)

package memory

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go SQLite driver by default.
const driverName = "sqlite"
