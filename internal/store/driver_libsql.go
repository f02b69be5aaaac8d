//go:build cgo

package store

import (
	// Registers the "libsql" database/sql driver.
	_ "github.com/tursodatabase/go-libsql"
)
