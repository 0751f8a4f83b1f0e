// Package migrations embeds the goose SQL migrations for the client's
// local upload history.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
