// Package migrations embeds the Message Store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
