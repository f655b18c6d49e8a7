// Package pathfilter decides which file-system paths belong in the index.
//
// A path is indexable when its extension is a configured image or video
// extension, it is not under a skip root, its lower-cased form contains no
// ignore keyword, and it is under at least one asset root. The checks run in
// that order. ShouldWatch is called for every raw watcher event, so it does
// no I/O.
package pathfilter
