// Package fetch retrieves terminology documents into memory. HTTP(S) ids go
// through a shared, tuned http.Client; file:// URLs and plain paths are read
// from disk. A successful Fetch always returns the complete payload.
package fetch
