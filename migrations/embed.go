// Package migrations embeds the SQL schema for the tenant store.
package migrations

import "embed"

// FS contains the goose migrations for Postgres.
//
//go:embed *.sql
var FS embed.FS

// Dir is the directory within FS where migrations live.
const Dir = "."
