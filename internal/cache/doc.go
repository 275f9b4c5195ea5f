// Package cache defines the named store that maps a request identity (Key)
// to an immutable response snapshot (Entry). Three backends share the Store
// contract: a file backend laid out as StoragePath/<StoreName>/<key>.entry
// (temp file + rename), a SQLite backend whose rows are scoped by store name,
// and an in-memory backend for tests and ephemeral runs. Renaming the store
// orphans everything written under the previous name, which is how callers
// invalidate cached content wholesale after a format change.
package cache
