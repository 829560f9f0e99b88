// Package migrations embeds the schema migrations applied by `roster-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
