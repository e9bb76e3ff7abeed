package util

import (
	"crypto/sha1"
	"encoding/hex"
)

// PathKey is the stable hex id of a cleaned relative path. Archive file names use it.
func PathKey(path string) string {
	sum := sha1.Sum([]byte(path))

	return hex.EncodeToString(sum[:])
}
