// Package source holds the pure decision logic choosing, per binary and
// platform, which distribution source, URL and archive format apply.
//
// No I/O happens here: selection either yields a complete Download plan or
// fails with the platform package's UnsupportedError before any URL is
// constructed for unknown pairs.
package source
