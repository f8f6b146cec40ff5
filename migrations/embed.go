// Package migrations embeds the journal schema so the binary carries its own
// SQL.
package migrations

import "embed"

// FS holds every *.sql file in this directory at its root.
//
//go:embed *.sql
var FS embed.FS
