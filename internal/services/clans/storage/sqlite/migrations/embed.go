package migrations

import "embed"

// FS contains embedded SQLite migrations for clan storage.
//
//go:embed *.sql
var FS embed.FS
