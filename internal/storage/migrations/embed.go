package migrations

import "embed"

// PostgresFS embeds the rounds and orders schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the audit_events schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
