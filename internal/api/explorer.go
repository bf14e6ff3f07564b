package api

import _ "embed"

// explorerHTML is the interactive explorer page served at GET /, adapted
// from original_source/src/api/routes.rs's HOME_HTML for this server's
// actual endpoint paths and response shape rather than copied verbatim.
//
//go:embed explorer.html
var explorerHTML []byte
