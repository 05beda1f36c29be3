// Package migrations carries the SQL schema applied by database.Migrate.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
