// Package migrations embeds the Postgres schema for the durable conversation store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
