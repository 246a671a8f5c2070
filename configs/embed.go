// Package configs provides the configuration templates embedded in the
// amanindex binary.
//
// Configuration precedence (see internal/config Load):
//  1. Defaults (config.NewConfig)
//  2. User config (~/.config/amanindex/config.yaml)
//  3. Project config (.amanindex.yaml)
//  4. Environment variables (AMANINDEX_*)
package configs

import _ "embed"

// UserConfigTemplate is written by `amanindex init --user`.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is written by `amanindex init` as .amanindex.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
