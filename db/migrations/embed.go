// Package migrations embeds the goose SQL migrations into the binary.
package migrations

import "embed"

// FS holds the versioned migration files under sql/.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory inside FS goose reads from.
const Dir = "sql"
