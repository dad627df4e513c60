package stores

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Checksum returns the hex BLAKE3 digest of doc.
func Checksum(doc []byte) string {
	sum := blake3.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// Verify checks the document against its recorded checksum.
func (v *ArchivedVersion) Verify() error {
	if got := Checksum(v.Document); got != v.Checksum {
		return fmt.Errorf("checksum mismatch for %s:%s: recorded %s, computed %s", v.Name, v.Version, v.Checksum, got)
	}
	return nil
}
