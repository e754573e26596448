// Package extract pulls the wanted executable out of downloaded archives.
//
// Two strategies share the Extractor contract: an in-process zip walker that
// strips the archive's synthetic top-level directory, and an external
// xz-into-tar process pipeline that extracts only the single wanted entry
// from xz-compressed tar archives.
package extract
