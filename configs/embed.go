// Package configs embeds the configuration template written by
// `crmrag config init`.
//
// Configuration precedence (see internal/config Load):
//  1. Defaults (internal/config NewConfig)
//  2. User config ($XDG_CONFIG_HOME/crmrag/config.yaml)
//  3. Project config (.crmrag.yaml) or --config
//  4. Environment variables (CRMRAG_*)
package configs

import _ "embed"

// ProjectConfigTemplate documents every key with its default value.
//
//go:embed crmrag.example.yaml
var ProjectConfigTemplate string
