// Package configs embeds the configuration templates written by
// 'mcb config init'.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .mcb.yaml written into a project.
// Every active key matches the built-in default.
//
//go:embed project.example.yaml
var ProjectConfigTemplate string
