// Package configs provides the embedded configuration template for
// voxrag. Embedding at build time keeps `voxrag config init` working in
// every distribution, source builds included.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `voxrag config init`. Values match the built-in defaults.
//
//go:embed config.example.yaml
var ConfigTemplate string
