// Package openapi embeds the HTTP API description served at /api/openapi.yaml.
package openapi

import _ "embed"

//go:embed openapi.yaml
var Document []byte
