// Package modules bundles the manifests of the built-in modules so the
// binary runs without a modules directory on disk.
package modules

import (
	"embed"
	"io/fs"
)

//go:embed */manifest.hcl
var manifests embed.FS

// Manifests returns the built-in module manifests, one directory per module.
func Manifests() fs.FS {
	return manifests
}
