// Package environment holds the client build configuration: the API server
// address, the identity-provider settings and the production flag. A record
// is selected from a built-in variant, optionally overlaid with a file, and
// treated as read-only for the rest of the process lifetime.
package environment
