//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// The vec0 virtual table used for ANN search exists only when the
// sqlite-vec extension is loaded; vec.Auto makes every connection the
// go-sqlite3 driver opens load it.
func init() {
	vec.Auto()
}
