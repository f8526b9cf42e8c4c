// Package migrations embeds the Postgres schema so the binary can migrate
// itself without shipping the SQL files alongside it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
