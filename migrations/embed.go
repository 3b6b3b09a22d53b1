package migrations

import "embed"

// Files embeds the ordered SQL schema migrations.
//
//go:embed *.sql
var Files embed.FS
