// Package migrations holds the goose SQL migrations for the cmdb schema,
// applied by crate-cli migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
