package migrations

import (
	"embed"
	"io/fs"
)

// files holds the sqlite schema as NNN_name.up.sql / NNN_name.down.sql pairs.
//
//go:embed *.sql
var files embed.FS

func FS() fs.FS {
	return files
}
