// Package installer drives the end-to-end acquisition pipeline: it resolves
// the target platform, selects download sources for the transcoder and prober
// binaries, fetches and unpacks their payloads and moves the executables into
// the install directory. A marker file in the cache directory keeps two
// installers from racing over the same cache.
package installer
