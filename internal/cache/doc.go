// Package cache implements the shared on-disk download cache and the URL
// normalization that keys it.
//
// Keys are derived from request URLs with time-limited signed-request
// parameters stripped for recognized cloud-storage hosts, so re-signed URLs
// for the same object hit the same entry. The store grows unboundedly;
// pruning is left to the user.
package cache
