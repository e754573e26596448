// Package downloader performs HTTP retrievals with persistent disk caching,
// bounded redirects, per-attempt timeouts, automatic retries, transparent
// gzip decoding of compressed payloads and incremental progress reporting.
//
// Proxy configuration comes from the standard proxy environment variables
// via the transport. All failures of a fetch are terminal and surface as a
// *NetworkError carrying the response URL and status code when available.
package downloader
