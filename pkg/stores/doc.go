// Package stores provides the SQLite-backed archive of project versions.
// Documents are stored with a BLAKE3 checksum that readers verify before
// trusting the content.
package stores
