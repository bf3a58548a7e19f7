// Package config provides configuration loading, merging, and validation
// facilities for the sync server and the device agent.
//
// Server configuration is assembled from multiple sources in the following
// priority order (the first source that sets a field wins):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON config file
//  4. Built-in defaults
//
// Per-entity conflict resolution rules live in a separate YAML file, see
// [LoadRules].
//
// The main entry points are [GetStructuredConfig] for the server and
// [GetClientConfig] for the device agent.
package config
