// Package appfs embeds the SQL migrations so deployed binaries carry their
// own schema.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
