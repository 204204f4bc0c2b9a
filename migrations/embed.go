// Package migrations ships the ledger schema as versioned golang-migrate files.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file of the schema
//
//go:embed *.sql
var FS embed.FS
