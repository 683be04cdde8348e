// Package cache defines the disk-backed store that keeps raw terminology
// documents under <CacheDir>/<md5(id)>.<basename> files. The store exposes
// read/write primitives with safe semantics (temp file + rename) and
// surfaces file info (size, modtime) so the Cache type can apply the
// retention window and decide whether the Fetcher has to be called.
// The registry depends on this package to obtain a byte stream for an id
// without duplicating filesystem logic.
package cache
