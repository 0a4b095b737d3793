// Package registry provides the central "glue" for the module system.
//
// The Registry stores mappings between the string identifiers used in
// manifests (e.g., "OnRunS3Upload") and the compiled Go functions and types
// that implement a module's logic. It also holds the parsed,
// format-agnostic definitions from the manifests themselves.
//
// During application startup the registry is populated and then validated
// so that the Go code and the manifests are known to agree before any step
// runs.
package registry
