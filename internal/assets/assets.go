// Package assets bundles the files shipped with the host.
package assets

import "embed"

// ConfigTemplate is the name of the bundled server configuration.
const ConfigTemplate = "config.yaml"

// FS holds the bundled templates.
//
//go:embed config.yaml
var FS embed.FS
