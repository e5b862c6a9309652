// Package migrations embeds the SQL schema migrations so the migrate
// binary can run them without shipping loose files alongside it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
