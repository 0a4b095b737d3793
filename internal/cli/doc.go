// Package cli is responsible for parsing command-line arguments with cobra,
// validating user input, and mapping failures to exit codes. It translates
// CLI flags into the application's configuration.
package cli
