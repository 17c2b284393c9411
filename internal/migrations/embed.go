// Package migrations embeds the goose SQL migrations of the durable store.
// Every statement is idempotent so that both processes may run them on open.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
