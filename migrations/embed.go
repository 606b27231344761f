// Package migrations embeds the netmuxd schema migrations into the binary.
package migrations

import "embed"

// FS holds the *.sql migration files at its root. Pass "." as the directory.
//
//go:embed *.sql
var FS embed.FS
