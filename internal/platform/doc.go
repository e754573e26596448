// Package platform resolves the target operating system and CPU
// architecture, validates the pair against the static support matrix and
// computes the final install locations for both binaries.
//
// Resolution honors configuration overrides before runtime introspection and
// fails with an UnsupportedError prior to any network activity when the pair
// has no source mapping.
package platform
