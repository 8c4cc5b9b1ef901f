// Package web embeds the browser client served at the site root.
package web

import "embed"

// Files contains the static client: index.html and app.js.
//
//go:embed index.html app.js
var Files embed.FS
