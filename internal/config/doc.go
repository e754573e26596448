// Package config captures the run configuration for the installation
// pipeline: platform/architecture overrides, the pinned primary release tag,
// source base URLs, install and cache directories, and download tuning.
//
// Configuration is resolved exactly once at startup. An optional YAML
// settings file provides the base values and recognized environment
// variables override them; the resulting Config value is immutable and
// passed to every component.
package config
