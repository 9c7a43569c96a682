// Package migrations embeds the numbered SQL files applied by `accumulator-server migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
