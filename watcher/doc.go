// Package watcher provides change sources for hot reload.
//
// FS watches a directory tree with fsnotify. Bursts of events are coalesced
// during a debounce window, so an editor that truncates, writes and renames
// a file produces a single notification. Manual is driven by the
// application and is handy in tests.
//
// Both emit model.Hash values on Changes() and satisfy rescache.ChangeSource.
package watcher
