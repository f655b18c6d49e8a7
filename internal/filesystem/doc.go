/*
Package filesystem wraps the file operations the indexer depends on.

StatWithRetry and OpenWithRetry retry NFS stale file handle errors (ESTALE)
with exponential backoff; every other error is returned immediately. Defaults
are 3 retries starting at 50ms and capped at 500ms.

IdentityOf decides how a file's version is recorded. Normally that is the
modification time alone. When the filesystem reports no usable mtime the
current time is recorded together with an xxhash64 content checksum:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}
	id, err := filesystem.IdentityOf(path, info)
*/
package filesystem
