// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the schema migrations, applied in lexical order.
//
//go:embed *.up.sql
var FS embed.FS
