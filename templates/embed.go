// Package templates embeds the planner contract document written into new
// .voxplan/ directories. The default config itself lives in code
// (model.DefaultConfig) so there is one source of truth for defaults.
package templates

import "embed"

//go:embed planner.md
var FS embed.FS
