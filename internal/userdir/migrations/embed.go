// Package migrations embeds the user-directory schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
