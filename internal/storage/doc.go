// Package storage keeps downloaded files on disk.
//
// Files are content addressed inside a per-session directory:
//
//	{root}/{session_id}/{sha256}_{sanitized basename}
//
// The file system is an afero.Fs so tests run against memory.
package storage
