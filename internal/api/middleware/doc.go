// Package middleware provides gin middleware for the admin API: CORS,
// per-IP and global rate limiting, and request id propagation.
package middleware
